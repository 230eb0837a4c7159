package identity_test

import (
	"context"
	"testing"

	identity "github.com/campuskit/go-identity"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuther(repo *memRepo) *identity.Auther {
	provider := identity.NewUserProvider(repo.Users())
	return identity.NewAuthenticator(provider, repo, newTestConfig())
}

func TestRegister(t *testing.T) {
	repo := newMemRepo()
	auther := newTestAuther(repo)

	user, err := auther.Register(context.Background(), identity.RegisterUserMessage{
		Name:     "Ada Lovelace",
		Email:    "Ada@Example.com",
		Password: "super-secret-password",
		Role:     "admin",
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, identity.RoleAdmin, user.Role)

	assert.NotEqual(t, "super-secret-password", user.PasswordHash)
	assert.NoError(t, identity.ComparePasswordAndHash("super-secret-password", user.PasswordHash))
}

func TestRegisterInvalidRole(t *testing.T) {
	repo := newMemRepo()
	auther := newTestAuther(repo)

	tests := []struct {
		name string
		role string
	}{
		{"unknown role", "superuser"},
		{"empty role", ""},
		{"wrong case", "Admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auther.Register(context.Background(), identity.RegisterUserMessage{
				Name:     "Mallory",
				Email:    "mallory@example.com",
				Password: "super-secret-password",
				Role:     tt.role,
			})
			require.Error(t, err)

			var richErr *errors.Error
			require.ErrorAs(t, err, &richErr)
			assert.Equal(t, identity.ErrInvalidRole.TextCode, richErr.TextCode)
			assert.Equal(t, identity.ErrInvalidRole.Code, richErr.Code)
			assert.Equal(t, identity.ErrInvalidRole.Category, richErr.Category)
			assert.Equal(t, tt.role, richErr.Metadata["role"])
		})
	}

	// attaching metadata must never leak into the shared package var
	assert.Nil(t, identity.ErrInvalidRole.Metadata)

	// nothing was persisted
	users, err := repo.Users().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newMemRepo()
	auther := newTestAuther(repo)

	msg := identity.RegisterUserMessage{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "super-secret-password",
		Role:     "student",
	}

	_, err := auther.Register(context.Background(), msg)
	require.NoError(t, err)

	msg.Name = "Ada Again"
	_, err = auther.Register(context.Background(), msg)
	assert.ErrorIs(t, err, identity.ErrEmailConflict)

	// case-insensitive match on the stored email
	msg.Email = "ADA@example.com"
	_, err = auther.Register(context.Background(), msg)
	assert.ErrorIs(t, err, identity.ErrEmailConflict)

	users, listErr := repo.Users().List(context.Background())
	require.NoError(t, listErr)
	assert.Len(t, users, 1)
}

func TestLogin(t *testing.T) {
	repo := newMemRepo()
	auther := newTestAuther(repo)

	registered, err := auther.Register(context.Background(), identity.RegisterUserMessage{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "super-secret-password",
		Role:     "admin",
	})
	require.NoError(t, err)

	token, user, err := auther.Login(context.Background(), "ada@example.com", "super-secret-password")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotNil(t, user)
	assert.Equal(t, registered.ID, user.ID)

	// token claims carry the user's id and role
	claims, err := auther.TokenService().Validate(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID.String(), claims.UserID())
	assert.Equal(t, "admin", claims.Role())
}

func TestLoginFailures(t *testing.T) {
	repo := newMemRepo()
	auther := newTestAuther(repo)

	_, err := auther.Register(context.Background(), identity.RegisterUserMessage{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "super-secret-password",
		Role:     "student",
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ada@example.com", "not-the-password"},
		{"unknown email", "nobody@example.com", "super-secret-password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, user, err := auther.Login(context.Background(), tt.email, tt.password)
			assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
			assert.Empty(t, token)
			assert.Nil(t, user)
		})
	}
}
