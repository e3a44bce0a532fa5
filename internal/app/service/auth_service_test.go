package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/minjcho/noteum-account/internal/app/model"
	"github.com/minjcho/noteum-account/internal/app/repository"
	"github.com/minjcho/noteum-account/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBlacklist is an in-memory TokenBlacklist for tests
type memoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func newMemoryBlacklist() *memoryBlacklist {
	return &memoryBlacklist{revoked: make(map[string]bool)}
}

func (b *memoryBlacklist) Blacklist(_ context.Context, token string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
	return nil
}

func (b *memoryBlacklist) IsBlacklisted(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[token], nil
}

func setupAuthServiceTest(t *testing.T) (AuthService, *memoryBlacklist) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(testDB)
	blacklist := newMemoryBlacklist()
	authService := NewAuthService(userRepo, blacklist, testJWTConfig())

	return authService, blacklist
}

func TestAuthService_Register(t *testing.T) {
	authService, _ := setupAuthServiceTest(t)

	tests := []struct {
		name     string
		email    string
		password string
		userName string
		wantErr  error
	}{
		{
			name:     "Valid registration",
			email:    "test@example.com",
			password: "password123",
			userName: "Test User",
			wantErr:  nil,
		},
		{
			name:     "Duplicate email",
			email:    "test@example.com",
			password: "password456",
			userName: "Another User",
			wantErr:  ErrEmailAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, tokens, err := authService.Register(tt.email, tt.password, tt.userName)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				assert.Nil(t, tokens)
			} else {
				require.NoError(t, err)
				require.NotNil(t, user)
				require.NotNil(t, tokens)
				assert.Equal(t, tt.email, user.Email)
				assert.Equal(t, tt.userName, user.Name)
				assert.Equal(t, model.RoleUser, user.Role)
				assert.NotEmpty(t, tokens.AccessToken)
				assert.NotEmpty(t, tokens.RefreshToken)
				assert.NotEqual(t, tt.password, user.PasswordHash)
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	authService, _ := setupAuthServiceTest(t)

	// Register a user first
	email := "test@example.com"
	password := "password123"
	_, _, err := authService.Register(email, password, "Test User")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{
			name:     "Valid login",
			email:    email,
			password: password,
			wantErr:  nil,
		},
		{
			name:     "Wrong password",
			email:    email,
			password: "wrongpassword",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name:     "Non-existing user",
			email:    "notfound@example.com",
			password: password,
			wantErr:  ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, tokens, err := authService.Login(tt.email, tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				assert.Nil(t, tokens)
			} else {
				require.NoError(t, err)
				require.NotNil(t, user)
				require.NotNil(t, tokens)
				assert.Equal(t, tt.email, user.Email)
			}
		})
	}
}

func TestAuthService_GetUserByID(t *testing.T) {
	authService, _ := setupAuthServiceTest(t)

	registered, _, err := authService.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	t.Run("Existing user", func(t *testing.T) {
		user, err := authService.GetUserByID(registered.ID)
		require.NoError(t, err)
		assert.Equal(t, registered.Email, user.Email)
	})

	t.Run("Unknown user", func(t *testing.T) {
		user, err := authService.GetUserByID(99999)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Nil(t, user)
	})
}

func TestAuthService_UpdateProfile(t *testing.T) {
	authService, _ := setupAuthServiceTest(t)

	registered, _, err := authService.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	t.Run("Update name", func(t *testing.T) {
		user, err := authService.UpdateProfile(registered.ID, "New Name")
		require.NoError(t, err)
		assert.Equal(t, "New Name", user.Name)
	})

	t.Run("Empty name keeps the old one", func(t *testing.T) {
		user, err := authService.UpdateProfile(registered.ID, "")
		require.NoError(t, err)
		assert.Equal(t, "New Name", user.Name)
	})

	t.Run("Unknown user", func(t *testing.T) {
		user, err := authService.UpdateProfile(99999, "Whoever")
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Nil(t, user)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	authService, _ := setupAuthServiceTest(t)

	email := "test@example.com"
	registered, _, err := authService.Register(email, "password123", "Test User")
	require.NoError(t, err)

	t.Run("Wrong current password", func(t *testing.T) {
		err := authService.ChangePassword(registered.ID, "wrongpassword", "newpassword")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Successful change", func(t *testing.T) {
		err := authService.ChangePassword(registered.ID, "password123", "newpassword")
		require.NoError(t, err)

		// Old password no longer works
		_, _, err = authService.Login(email, "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, _, err = authService.Login(email, "newpassword")
		require.NoError(t, err)
	})

	t.Run("Unknown user", func(t *testing.T) {
		err := authService.ChangePassword(99999, "whatever", "newpassword")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestAuthService_RefreshToken(t *testing.T) {
	authService, _ := setupAuthServiceTest(t)

	_, tokens, err := authService.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	t.Run("Valid refresh token", func(t *testing.T) {
		refreshed, err := authService.RefreshToken(tokens.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, refreshed)
		assert.NotEmpty(t, refreshed.AccessToken)
		assert.NotEmpty(t, refreshed.RefreshToken)
	})

	t.Run("Garbage token", func(t *testing.T) {
		refreshed, err := authService.RefreshToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, refreshed)
	})
}

func TestAuthService_RevokeToken(t *testing.T) {
	authService, blacklist := setupAuthServiceTest(t)

	_, tokens, err := authService.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	require.NoError(t, authService.RevokeToken(tokens.RefreshToken))

	revoked, err := blacklist.IsBlacklisted(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, revoked)

	// A revoked token cannot be refreshed
	refreshed, err := authService.RefreshToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.Nil(t, refreshed)
}

func TestAuthService_NilBlacklist(t *testing.T) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(testDB)
	authService := NewAuthService(userRepo, nil, testJWTConfig())

	_, tokens, err := authService.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	// Without a blacklist, revocation is a no-op and refresh keeps working
	require.NoError(t, authService.RevokeToken(tokens.RefreshToken))

	refreshed, err := authService.RefreshToken(tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotNil(t, refreshed)
}
