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

func newTestRBACService(
	roleRepo *mockRoleRepository,
	permRepo *mockPermissionRepository,
	userRepo *mockUserRepository,
) *RBACService {
	return NewRBACService(roleRepo, permRepo, userRepo, newTestLogger())
}

func TestCreateRole_Success(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	svc := newTestRBACService(roleRepo, permRepo, new(mockUserRepository))
	ctx := context.Background()

	permRepo.On("GetByName", ctx, "user.read").Return(&domain.Permission{ID: "p-1", Name: "user.read"}, nil)
	permRepo.On("GetByName", ctx, "user.update").Return(&domain.Permission{ID: "p-2", Name: "user.update"}, nil)
	roleRepo.On("Create", ctx, mock.AnythingOfType("*domain.Role"), []string{"p-1", "p-2"}).Return(nil)

	role, err := svc.CreateRole(ctx, RoleInput{
		Name:        "support",
		Description: "Support staff",
		Permissions: []string{"user.read", "user.update"},
	})

	require.NoError(t, err)
	assert.Equal(t, "support", role.Name)
	assert.Equal(t, []string{"user.read", "user.update"}, role.Permissions)
	roleRepo.AssertExpectations(t)
}

func TestCreateRole_UnknownPermission(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	permRepo := new(mockPermissionRepository)
	svc := newTestRBACService(roleRepo, permRepo, new(mockUserRepository))
	ctx := context.Background()

	permRepo.On("GetByName", ctx, "teleport").Return(nil, apperrors.ErrNotFound)

	_, err := svc.CreateRole(ctx, RoleInput{
		Name:        "support",
		Permissions: []string{"teleport"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	roleRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateRole_SystemRoleCannotBeRenamed(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	svc := newTestRBACService(roleRepo, new(mockPermissionRepository), new(mockUserRepository))
	ctx := context.Background()

	roleRepo.On("GetByID", ctx, "role-admin").
		Return(&domain.Role{ID: "role-admin", Name: "admin", IsSystem: true}, nil)

	_, err := svc.UpdateRole(ctx, "role-admin", RoleInput{Name: "superuser"})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	roleRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateRole_DescriptionOnly(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	svc := newTestRBACService(roleRepo, new(mockPermissionRepository), new(mockUserRepository))
	ctx := context.Background()

	roleRepo.On("GetByID", ctx, "role-admin").
		Return(&domain.Role{ID: "role-admin", Name: "admin", IsSystem: true}, nil)
	roleRepo.On("Update", ctx, mock.AnythingOfType("*domain.Role"), []string(nil)).Return(nil)

	role, err := svc.UpdateRole(ctx, "role-admin", RoleInput{Name: "admin", Description: "Full access"})

	require.NoError(t, err)
	assert.Equal(t, "Full access", role.Description)
}

func TestDeleteRole_SystemRoleBlocked(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	svc := newTestRBACService(roleRepo, new(mockPermissionRepository), new(mockUserRepository))
	ctx := context.Background()

	roleRepo.On("GetByID", ctx, "role-admin").
		Return(&domain.Role{ID: "role-admin", Name: "admin", IsSystem: true}, nil)

	err := svc.DeleteRole(ctx, "role-admin")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	roleRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteRole_StillAssigned(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	userRepo := new(mockUserRepository)
	svc := newTestRBACService(roleRepo, new(mockPermissionRepository), userRepo)
	ctx := context.Background()

	roleRepo.On("GetByID", ctx, "role-support").
		Return(&domain.Role{ID: "role-support", Name: "support"}, nil)
	userRepo.On("CountByRoleID", ctx, "role-support").Return(3, nil)

	err := svc.DeleteRole(ctx, "role-support")

	require.Error(t, err)
	assert.Equal(t, "ROLE_IN_USE", appErrCode(t, err))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	roleRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteRole_Unassigned(t *testing.T) {
	roleRepo := new(mockRoleRepository)
	userRepo := new(mockUserRepository)
	svc := newTestRBACService(roleRepo, new(mockPermissionRepository), userRepo)
	ctx := context.Background()

	roleRepo.On("GetByID", ctx, "role-support").
		Return(&domain.Role{ID: "role-support", Name: "support"}, nil)
	userRepo.On("CountByRoleID", ctx, "role-support").Return(0, nil)
	roleRepo.On("Delete", ctx, "role-support").Return(nil)

	require.NoError(t, svc.DeleteRole(ctx, "role-support"))
	roleRepo.AssertExpectations(t)
}

func TestCreatePermission_Success(t *testing.T) {
	permRepo := new(mockPermissionRepository)
	svc := newTestRBACService(new(mockRoleRepository), permRepo, new(mockUserRepository))
	ctx := context.Background()

	permRepo.On("Create", ctx, mock.AnythingOfType("*domain.Permission")).Return(nil)

	perm, err := svc.CreatePermission(ctx, PermissionInput{
		Name:        "report.generate",
		Description: "Generate reports",
	})

	require.NoError(t, err)
	assert.Equal(t, "report.generate", perm.Name)
	assert.NotEmpty(t, perm.ID)
}

func TestDeletePermission_StillReferenced(t *testing.T) {
	permRepo := new(mockPermissionRepository)
	svc := newTestRBACService(new(mockRoleRepository), permRepo, new(mockUserRepository))
	ctx := context.Background()

	permRepo.On("GetByID", ctx, "p-1").
		Return(&domain.Permission{ID: "p-1", Name: "user.read"}, nil)
	permRepo.On("CountRolesByPermissionID", ctx, "p-1").Return(2, nil)

	err := svc.DeletePermission(ctx, "p-1")

	require.Error(t, err)
	assert.Equal(t, "PERMISSION_IN_USE", appErrCode(t, err))
	permRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeletePermission_Unreferenced(t *testing.T) {
	permRepo := new(mockPermissionRepository)
	svc := newTestRBACService(new(mockRoleRepository), permRepo, new(mockUserRepository))
	ctx := context.Background()

	permRepo.On("GetByID", ctx, "p-1").
		Return(&domain.Permission{ID: "p-1", Name: "report.generate"}, nil)
	permRepo.On("CountRolesByPermissionID", ctx, "p-1").Return(0, nil)
	permRepo.On("Delete", ctx, "p-1").Return(nil)

	require.NoError(t, svc.DeletePermission(ctx, "p-1"))
	permRepo.AssertExpectations(t)
}
