package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat-backend/internal/config"
	"relaychat-backend/internal/store/memory"
)

func newAuthService() *AuthService {
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
	}
	return NewAuthService(memory.NewMemoryStore(), cfg)
}

func TestSignupAndLogin(t *testing.T) {
	svc := newAuthService()

	user, err := svc.Signup(context.Background(), "User@Example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.HashedPassword)

	token, loggedIn, err := svc.Login(context.Background(), "user@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Signup(context.Background(), "dup@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), "dup@example.com", "password2")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestSignupValidation(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Signup(context.Background(), "", "password")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Signup(context.Background(), "a@b.com", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newAuthService()

	_, err := svc.Signup(context.Background(), "user@example.com", "right-password")
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "user@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "stranger@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
