package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJWTConfig_Validate(t *testing.T) {
	cfg := JWTConfig{Secret: "test-secret-key", ExpirationHours: 24}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 24*time.Hour, cfg.Expiration())

	missing := JWTConfig{ExpirationHours: 24}
	assert.ErrorContains(t, missing.Validate(), "secret is required")

	zero := JWTConfig{Secret: "test-secret-key"}
	assert.ErrorContains(t, zero.Validate(), "at least 1 hour")
}
