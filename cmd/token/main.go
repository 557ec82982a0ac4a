// Command token issues a merchant API token signed with the configured JWT secret.
//
//	token -merchant 6f1c2a9e-4b7d-4c35-9e0a-2d8f5b6a7c01
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pix-gateway/config"
	"pix-gateway/internal/adapter/storage/memory"
	"pix-gateway/internal/service"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to ./config.yaml or ./config/config.yaml)")
	merchant := flag.String("merchant", memory.DemoMerchantID.String(), "merchant id to issue the token for")
	expiry := flag.Duration("expiry", 0, "token lifetime (defaults to jwt.expiry)")
	flag.Parse()

	if err := run(*configPath, *merchant, *expiry); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, merchant string, expiry time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	merchantID, err := uuid.Parse(merchant)
	if err != nil {
		return fmt.Errorf("invalid merchant id %q: %w", merchant, err)
	}

	if expiry <= 0 {
		expiry = cfg.JWT.Expiry
	}

	token, expiresAt, err := service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer).Generate(merchantID)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
