package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) GetSecretOrEnv(ctx context.Context, secretName, envKey string) (string, error) {
	if v, ok := m[secretName]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Contains(t, cfg.CORS.AllowedHeaders, "X-Location-ID")
	assert.NotEmpty(t, cfg.Jobs.RateSyncSchedule)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "topsecret")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "topsecret", cfg.Auth.JWTSecret)
	assert.Equal(t, "smtp.example.com", cfg.Mail.Host)
	assert.Equal(t, 2525, cfg.Mail.Port)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: "mysql"}}
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate(), "no credentials configured")

	cfg.ApiKey.Value = "key"
	assert.NoError(t, cfg.Validate())
}

func TestApplyVaultSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Password = "env-password"
	cfg.Mail.Password = "env-smtp"

	applyVaultSecrets(context.Background(), cfg, mapSource{
		"POSTGRES-MAIN-PASSWORD": "vault-password",
		"jwt-secret":             "vault-jwt",
	})

	assert.Equal(t, "vault-password", cfg.Database.Password)
	assert.Equal(t, "vault-jwt", cfg.Auth.JWTSecret)
	assert.Equal(t, "env-smtp", cfg.Mail.Password, "missing secrets keep the loaded value")
}
