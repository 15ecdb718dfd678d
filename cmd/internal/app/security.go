package app

import (
	"errors"
	"fmt"

	"beacon/cmd/security/token"
)

const minSessionSecretBytes = 32

// Fail-fast checks on secrets. We refuse to boot with weak or missing
// credentials rather than degrade to an open relay.
func validateSecurity(cfg Config) ([]byte, error) {
	secret, err := token.SecretFromEnv(minSessionSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}

	if cfg.BotKey == "" {
		return nil, errors.New("BEACON_BOT_KEY is required: intake endpoints cannot run unauthenticated")
	}
	if len(cfg.BotKey) < 16 {
		return nil, errors.New("BEACON_BOT_KEY too short: want at least 16 characters")
	}

	return secret, nil
}
