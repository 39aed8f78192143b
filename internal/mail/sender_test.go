package mail

import (
	"context"
	"testing"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSender_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.MailConfig
	}{
		{"nil config", nil},
		{"missing host", &config.MailConfig{From: "crm@example.com"}},
		{"missing from", &config.MailConfig{Host: "smtp.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSender(tt.cfg, zap.NewNop())
			assert.False(t, s.Enabled())

			err := s.Send(context.Background(), &Message{To: []string{"a@example.com"}, Subject: "x"})
			assert.ErrorIs(t, err, ErrConfigurationMissing)

			err = s.SendTemplate(context.Background(), TemplateAccountCreated, AccountCreatedData{Name: "A"}, "a@example.com")
			assert.ErrorIs(t, err, ErrConfigurationMissing)
		})
	}
}

func TestSender_BuildMessage(t *testing.T) {
	s := NewSender(&config.MailConfig{Host: "smtp.example.com", Port: 587, From: "crm@example.com"}, zap.NewNop())

	m, err := s.buildMessage(&Message{To: []string{"tech@example.com"}, Subject: "Hello", TextBody: "Body"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello"}, m.GetGenHeader("Subject"))

	_, err = s.buildMessage(&Message{Subject: "no recipients"})
	assert.Error(t, err)

	_, err = s.buildMessage(&Message{To: []string{"not an address"}})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	subject, body, err := Render(TemplateAccountCreated, AccountCreatedData{
		Name:    "Anna",
		Email:   "anna@example.com",
		Role:    "TECHNICIAN",
		Modules: []string{"vectra", "opl"},
		AppURL:  "https://crm.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your Field CRM account is ready", subject)
	assert.Contains(t, body, "Hello Anna,")
	assert.Contains(t, body, "role TECHNICIAN")
	assert.Contains(t, body, "Modules: vectra, opl")
	assert.Contains(t, body, "Sign in with anna@example.com at https://crm.example.com.")

	subject, body, err = Render(TemplateOperationalFailure, OperationalFailureData{
		Module:    "opl",
		Operation: "rate sync",
		Detail:    "connection refused",
		At:        "2026-01-02T03:04:05Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "[opl] rate sync failed", subject)
	assert.Contains(t, body, "connection refused")

	_, _, err = Render(Template("missing"), nil)
	assert.Error(t, err)
}
