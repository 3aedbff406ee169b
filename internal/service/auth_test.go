package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/identity/internal/domain"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

func defaultRole() *domain.Role {
	return &domain.Role{ID: "role-user", Name: "user", IsSystem: true}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	roleRepo.On("GetByName", ctx, "user").Return(defaultRole(), nil)
	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	permRepo.On("ListNamesByUserID", ctx, mock.AnythingOfType("string")).Return([]string{"file.read"}, nil)
	tokenRepo.On("Create", ctx, mock.AnythingOfType("*domain.RefreshToken")).Return(nil)

	user, tokens, err := svc.Register(ctx, RegisterInput{
		Email:    "john@example.com",
		Password: "SecurePass123",
		Name:     "John Doe",
	})

	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, tokens)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "john@example.com", user.Email)
	assert.Equal(t, []string{"user"}, user.Roles)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "SecurePass123", user.PasswordHash)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	userRepo.AssertExpectations(t)
	tokenRepo.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	roleRepo.On("GetByName", ctx, "user").Return(defaultRole(), nil)
	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(apperrors.AlreadyExists("user", "email", "john@example.com"))

	user, tokens, err := svc.Register(ctx, RegisterInput{
		Email:    "john@example.com",
		Password: "SecurePass123",
		Name:     "John Doe",
	})

	assert.Nil(t, user)
	assert.Nil(t, tokens)
	require.Error(t, err)
	assert.Equal(t, "EMAIL_EXISTS", appErrCode(t, err))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRegister_DefaultRoleMissing(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	roleRepo.On("GetByName", ctx, "user").Return(nil, apperrors.ErrNotFound)

	_, _, err := svc.Register(ctx, RegisterInput{
		Email:    "john@example.com",
		Password: "SecurePass123",
		Name:     "John Doe",
	})

	require.Error(t, err)
	assert.Equal(t, "CONFIGURATION_ERROR", appErrCode(t, err))
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_WeakPasswords(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"too short", "Ab1"},
		{"no digit", "SecurePassword"},
		{"no letter", "1234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(
				new(mockUserRepository),
				new(mockRoleRepository),
				new(mockPermissionRepository),
				new(mockRefreshTokenRepository),
			)

			_, _, err := svc.Register(context.Background(), RegisterInput{
				Email:    "john@example.com",
				Password: tt.password,
				Name:     "John Doe",
			})

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestRegister_MissingEmail(t *testing.T) {
	svc := newTestAuthService(
		new(mockUserRepository),
		new(mockRoleRepository),
		new(mockPermissionRepository),
		new(mockRefreshTokenRepository),
	)

	_, _, err := svc.Register(context.Background(), RegisterInput{
		Password: "SecurePass123",
		Name:     "John Doe",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Login Tests ---

func activeUserWithPassword(password string) *domain.User {
	return &domain.User{
		ID:           "user-123",
		Email:        "john@example.com",
		PasswordHash: hashForTest(password),
		Name:         "John Doe",
		IsActive:     true,
		Roles:        []string{"user"},
	}
}

func TestLogin_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	userRepo.On("GetByEmail", ctx, "john@example.com").Return(activeUserWithPassword("SecurePass123"), nil)
	permRepo.On("ListNamesByUserID", ctx, "user-123").Return([]string{"user.read"}, nil)
	tokenRepo.On("Create", ctx, mock.AnythingOfType("*domain.RefreshToken")).Return(nil)
	userRepo.On("UpdateLastLogin", ctx, "user-123").Return(nil)

	user, tokens, err := svc.Login(ctx, LoginInput{
		Email:    "john@example.com",
		Password: "SecurePass123",
	})

	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	userRepo.AssertExpectations(t)
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc := newTestAuthService(userRepo, new(mockRoleRepository), new(mockPermissionRepository), new(mockRefreshTokenRepository))
	ctx := context.Background()

	userRepo.On("GetByEmail", ctx, "nobody@example.com").Return(nil, apperrors.ErrNotFound)
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(activeUserWithPassword("SecurePass123"), nil)

	_, _, unknownErr := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "SecurePass123"})
	_, _, wrongErr := svc.Login(ctx, LoginInput{Email: "john@example.com", Password: "WrongPass999"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, "INVALID_CREDENTIALS", appErrCode(t, unknownErr))
	assert.Equal(t, "INVALID_CREDENTIALS", appErrCode(t, wrongErr))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLogin_InactiveUserIndistinguishableFromUnknown(t *testing.T) {
	userRepo := new(mockUserRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, new(mockRoleRepository), new(mockPermissionRepository), tokenRepo)
	ctx := context.Background()

	inactive := activeUserWithPassword("SecurePass123")
	inactive.IsActive = false
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(inactive, nil)
	userRepo.On("GetByEmail", ctx, "nobody@example.com").Return(nil, apperrors.ErrNotFound)

	// Correct password on a deactivated account must look exactly like a
	// login against an account that does not exist.
	_, _, inactiveErr := svc.Login(ctx, LoginInput{Email: "john@example.com", Password: "SecurePass123"})
	_, _, unknownErr := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "SecurePass123"})

	require.Error(t, inactiveErr)
	require.Error(t, unknownErr)
	assert.Equal(t, "INVALID_CREDENTIALS", appErrCode(t, inactiveErr))
	assert.Equal(t, unknownErr.Error(), inactiveErr.Error())
	tokenRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Refresh Tests ---

func TestRefresh_RotatesTokens(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	user := activeUserWithPassword("SecurePass123")

	// Issue an initial pair so we hold a real refresh token.
	var ledger []*domain.RefreshToken
	tokenRepo.On("Create", ctx, mock.AnythingOfType("*domain.RefreshToken")).
		Run(func(args mock.Arguments) {
			ledger = append(ledger, args.Get(1).(*domain.RefreshToken))
		}).
		Return(nil)
	permRepo.On("ListNamesByUserID", ctx, "user-123").Return([]string{"user.read"}, nil)
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(user, nil)
	userRepo.On("UpdateLastLogin", ctx, "user-123").Return(nil)

	_, initial, err := svc.Login(ctx, LoginInput{Email: "john@example.com", Password: "SecurePass123"})
	require.NoError(t, err)
	require.Len(t, ledger, 1)

	tokenRepo.On("GetByJTI", ctx, ledger[0].JTI).Return(ledger[0], nil)
	tokenRepo.On("Revoke", ctx, ledger[0].JTI).Return(true, nil)
	userRepo.On("GetByID", ctx, "user-123").Return(user, nil)

	rotated, err := svc.Refresh(ctx, initial.RefreshToken, domain.SessionMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, initial.RefreshToken, rotated.RefreshToken)
	require.Len(t, ledger, 2)
	assert.NotEqual(t, ledger[0].JTI, ledger[1].JTI)
}

func TestRefresh_SecondUseOfSameTokenFails(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	user := activeUserWithPassword("SecurePass123")

	var ledger []*domain.RefreshToken
	tokenRepo.On("Create", ctx, mock.AnythingOfType("*domain.RefreshToken")).
		Run(func(args mock.Arguments) {
			ledger = append(ledger, args.Get(1).(*domain.RefreshToken))
		}).
		Return(nil)
	permRepo.On("ListNamesByUserID", ctx, "user-123").Return([]string{}, nil)
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(user, nil)
	userRepo.On("UpdateLastLogin", ctx, "user-123").Return(nil)

	_, initial, err := svc.Login(ctx, LoginInput{Email: "john@example.com", Password: "SecurePass123"})
	require.NoError(t, err)

	tokenRepo.On("GetByJTI", ctx, ledger[0].JTI).Return(ledger[0], nil)
	// First consume wins, second loses the conditional revoke.
	tokenRepo.On("Revoke", ctx, ledger[0].JTI).Return(true, nil).Once()
	tokenRepo.On("Revoke", ctx, ledger[0].JTI).Return(false, nil).Once()
	userRepo.On("GetByID", ctx, "user-123").Return(user, nil)

	_, err = svc.Refresh(ctx, initial.RefreshToken, domain.SessionMeta{})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, initial.RefreshToken, domain.SessionMeta{})
	require.Error(t, err)
	assert.Equal(t, "TOKEN_REVOKED", appErrCode(t, err))
}

func TestRefresh_UserDeletedAfterIssue(t *testing.T) {
	userRepo := new(mockUserRepository)
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestAuthService(userRepo, roleRepo, permRepo, tokenRepo)
	ctx := context.Background()

	user := activeUserWithPassword("SecurePass123")

	var ledger []*domain.RefreshToken
	tokenRepo.On("Create", ctx, mock.AnythingOfType("*domain.RefreshToken")).
		Run(func(args mock.Arguments) {
			ledger = append(ledger, args.Get(1).(*domain.RefreshToken))
		}).
		Return(nil)
	permRepo.On("ListNamesByUserID", ctx, "user-123").Return([]string{}, nil)
	userRepo.On("GetByEmail", ctx, "john@example.com").Return(user, nil)
	userRepo.On("UpdateLastLogin", ctx, "user-123").Return(nil)

	_, initial, err := svc.Login(ctx, LoginInput{Email: "john@example.com", Password: "SecurePass123"})
	require.NoError(t, err)

	tokenRepo.On("GetByJTI", ctx, ledger[0].JTI).Return(ledger[0], nil)
	tokenRepo.On("Revoke", ctx, ledger[0].JTI).Return(true, nil)
	userRepo.On("GetByID", ctx, "user-123").Return(nil, apperrors.ErrNotFound)

	_, err = svc.Refresh(ctx, initial.RefreshToken, domain.SessionMeta{})
	require.Error(t, err)
	assert.Equal(t, "USER_NOT_FOUND", appErrCode(t, err))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- Current User Tests ---

func TestGetCurrentUser(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc := newTestAuthService(userRepo, new(mockRoleRepository), new(mockPermissionRepository), new(mockRefreshTokenRepository))
	ctx := context.Background()

	user := activeUserWithPassword("SecurePass123")
	userRepo.On("GetByID", ctx, "user-123").Return(user, nil)

	got, err := svc.GetCurrentUser(ctx, "user-123")
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", got.Email)
}

func TestCheckUserActive(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc := newTestAuthService(userRepo, new(mockRoleRepository), new(mockPermissionRepository), new(mockRefreshTokenRepository))
	ctx := context.Background()

	active := activeUserWithPassword("SecurePass123")
	inactive := activeUserWithPassword("SecurePass123")
	inactive.ID = "user-456"
	inactive.IsActive = false

	userRepo.On("GetByID", ctx, "user-123").Return(active, nil)
	userRepo.On("GetByID", ctx, "user-456").Return(inactive, nil)
	userRepo.On("GetByID", ctx, "user-999").Return(nil, apperrors.ErrNotFound)

	found, isActive, err := svc.CheckUserActive(ctx, "user-123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, isActive)

	found, isActive, err = svc.CheckUserActive(ctx, "user-456")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, isActive)

	found, _, err = svc.CheckUserActive(ctx, "user-999")
	require.NoError(t, err)
	assert.False(t, found)
}
