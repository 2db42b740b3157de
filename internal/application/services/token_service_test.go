package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/scheduler/internal/infrastructure/config"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := NewTokenService(config.AuthConfig{Secret: "s3cret", Issuer: "scheduler", ExpiresIn: time.Minute})

	token, err := svc.Issue("cli")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "cli", claims.Subject)
	assert.Equal(t, "scheduler", claims.Issuer)
}

func TestTokenService_RejectsForeignSecret(t *testing.T) {
	issuer := NewTokenService(config.AuthConfig{Secret: "one", Issuer: "scheduler", ExpiresIn: time.Minute})
	verifier := NewTokenService(config.AuthConfig{Secret: "two", Issuer: "scheduler", ExpiresIn: time.Minute})

	token, err := issuer.Issue("cli")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc := NewTokenService(config.AuthConfig{Secret: "s3cret", ExpiresIn: time.Minute})
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := svc.Issue("cli")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestTokenService_Disabled(t *testing.T) {
	svc := NewTokenService(config.AuthConfig{})

	assert.False(t, svc.Enabled())
	_, err := svc.Issue("cli")
	assert.ErrorIs(t, err, ErrAuthDisabled)
	_, err = svc.Validate("anything")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}
