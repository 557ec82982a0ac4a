package handler

import (
	"errors"
	"io"
	"net/http"

	"pix-gateway/internal/adapter/http/dto"
	"pix-gateway/internal/adapter/provider"
	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"
	"pix-gateway/pkg/apperror"
	"pix-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SignatureHeader carries the acquirer's HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Signature"

// WebhookHandler ingests acquirer callbacks.
type WebhookHandler struct {
	acquirers  ports.AcquirerRepository
	encSvc     ports.EncryptionService
	sigSvc     ports.SignatureService
	reconciler ports.ReconcilerService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(
	acquirers ports.AcquirerRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	reconciler ports.ReconcilerService,
	log zerolog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		acquirers:  acquirers,
		encSvc:     encSvc,
		sigSvc:     sigSvc,
		reconciler: reconciler,
		log:        log,
	}
}

// Receive handles POST /webhooks/:acquirer.
// Applied, duplicate, unresolved and ignored events all answer 200 so the
// acquirer stops redelivering; only failures that a retry can fix get 409 or 5xx.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("acquirer")

	acq, err := h.acquirers.GetByCode(ctx, code)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if acq == nil || !acq.IsActive {
		response.Error(c, apperror.ErrNotFound("acquirer"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, err)
			return
		}
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	switch {
	case acq.WebhookSecretEnc != "":
		secret, err := h.encSvc.Decrypt(acq.WebhookSecretEnc)
		if err != nil {
			h.log.Error().Err(err).Str("acquirer", code).Msg("failed to decrypt acquirer webhook secret")
			response.Error(c, apperror.ErrEncryptionFailure(err))
			return
		}
		if !h.sigSvc.Verify(secret, string(body), c.GetHeader(SignatureHeader)) {
			h.log.Warn().Str("acquirer", code).Str("client_ip", c.ClientIP()).Msg("webhook signature mismatch")
			response.Error(c, apperror.ErrInvalidSignature())
			return
		}
	case acq.Environment != domain.EnvironmentSandbox:
		// unsigned callbacks are only trusted from sandbox acquirers
		h.log.Warn().Str("acquirer", code).Str("client_ip", c.ClientIP()).Msg("webhook rejected, acquirer has no webhook secret")
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	ev, err := provider.ParseEvent(body)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	ev.AcquirerID = &acq.ID

	result, err := h.reconciler.HandleEvent(ctx, ev)
	if err != nil {
		h.log.Warn().Err(err).Str("acquirer", code).Str("provider_id", ev.ProviderID).Msg("webhook not applied")
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewWebhookAckResponse(result))
}
