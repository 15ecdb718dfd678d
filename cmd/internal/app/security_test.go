package app

import (
	"strings"
	"testing"
)

func TestValidateSecurity(t *testing.T) {
	goodSecret := strings.Repeat("s", 32)
	goodKey := strings.Repeat("k", 24)

	t.Run("accepts strong material", func(t *testing.T) {
		t.Setenv("BEACON_SESSION_SECRET", goodSecret)

		secret, err := validateSecurity(Config{BotKey: goodKey})
		if err != nil {
			t.Fatalf("validateSecurity() = %v", err)
		}
		if string(secret) != goodSecret {
			t.Fatal("returned secret does not match the environment")
		}
	})

	t.Run("rejects missing secret", func(t *testing.T) {
		t.Setenv("BEACON_SESSION_SECRET", "")

		if _, err := validateSecurity(Config{BotKey: goodKey}); err == nil {
			t.Fatal("validateSecurity() accepted a missing secret")
		}
	})

	t.Run("rejects short secret", func(t *testing.T) {
		t.Setenv("BEACON_SESSION_SECRET", "too-short")

		if _, err := validateSecurity(Config{BotKey: goodKey}); err == nil {
			t.Fatal("validateSecurity() accepted a short secret")
		}
	})

	t.Run("rejects missing bot key", func(t *testing.T) {
		t.Setenv("BEACON_SESSION_SECRET", goodSecret)

		if _, err := validateSecurity(Config{}); err == nil {
			t.Fatal("validateSecurity() accepted a missing bot key")
		}
	})

	t.Run("rejects short bot key", func(t *testing.T) {
		t.Setenv("BEACON_SESSION_SECRET", goodSecret)

		if _, err := validateSecurity(Config{BotKey: "short"}); err == nil {
			t.Fatal("validateSecurity() accepted a short bot key")
		}
	})
}
