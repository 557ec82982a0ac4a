package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// FactoryConfig holds outbound acquirer client settings.
type FactoryConfig struct {
	RateLimitRPS   float64 // 0 disables throttling
	RateLimitBurst int
	SandboxTTL     time.Duration
}

// Factory implements ports.ProviderFactory. Limiters and sandboxes are kept per
// acquirer so throttling holds across requests.
type Factory struct {
	enc  ports.EncryptionService
	http HTTPDoer
	cfg  FactoryConfig
	log  zerolog.Logger

	mu        sync.Mutex
	limiters  map[uuid.UUID]*rate.Limiter
	sandboxes map[uuid.UUID]*Sandbox
}

// NewFactory creates a provider factory.
func NewFactory(enc ports.EncryptionService, doer HTTPDoer, cfg FactoryConfig, log zerolog.Logger) *Factory {
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	return &Factory{
		enc:       enc,
		http:      doer,
		cfg:       cfg,
		log:       log,
		limiters:  make(map[uuid.UUID]*rate.Limiter),
		sandboxes: make(map[uuid.UUID]*Sandbox),
	}
}

// ForAcquirer returns a client for acq, decrypting its stored credentials.
func (f *Factory) ForAcquirer(_ context.Context, acq *domain.Acquirer) (ports.Provider, error) {
	if acq == nil {
		return nil, fmt.Errorf("nil acquirer")
	}

	if strings.HasPrefix(acq.BaseURL, SandboxScheme) {
		return f.sandbox(acq), nil
	}

	var creds Credentials
	if acq.CredentialsEnc != "" {
		plain, err := f.enc.Decrypt(acq.CredentialsEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt credentials of %s: %w", acq.Code, err)
		}
		if err := json.Unmarshal([]byte(plain), &creds); err != nil {
			return nil, fmt.Errorf("parse credentials of %s: %w", acq.Code, err)
		}
	}

	return NewHTTPClient(acq.Code, acq.BaseURL, creds, f.http, f.limiter(acq.ID)), nil
}

func (f *Factory) limiter(id uuid.UUID) *rate.Limiter {
	if f.cfg.RateLimitRPS <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RateLimitRPS), f.cfg.RateLimitBurst)
		f.limiters[id] = l
	}
	return l
}

func (f *Factory) sandbox(acq *domain.Acquirer) *Sandbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sandboxes[acq.ID]
	if !ok {
		f.log.Debug().Str("acquirer", acq.Code).Msg("using in-process sandbox acquirer")
		s = NewSandbox(acq.Code, f.cfg.SandboxTTL)
		f.sandboxes[acq.ID] = s
	}
	return s
}
