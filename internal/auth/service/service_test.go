package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	authdomain "github.com/smallbiznis/rukun/internal/auth/domain"
	"github.com/smallbiznis/rukun/internal/auth/repository"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (authdomain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&authdomain.User{}, &authdomain.Session{}))

	repo, sessionRepo := repository.New(db)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc := New(Params{
		Log:         zap.NewNop(),
		Config:      config.Config{SessionTTL: time.Hour},
		Clock:       clk,
		GenID:       node,
		Repo:        repo,
		SessionRepo: sessionRepo,
	})
	return svc, clk
}

func tenantID(v int64) *snowflake.ID {
	id := snowflake.ID(v)
	return &id
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "not-an-email", Password: "long-enough", RoleCode: tenancy.RoleMember, TenantID: tenantID(10)})
	assert.ErrorIs(t, err, authdomain.ErrInvalidEmail)

	_, err = svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "a@rt01.id", Password: "short", RoleCode: tenancy.RoleMember, TenantID: tenantID(10)})
	assert.ErrorIs(t, err, authdomain.ErrWeakPassword)

	_, err = svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "a@rt01.id", Password: "long-enough", RoleCode: "KETUA", TenantID: tenantID(10)})
	assert.ErrorIs(t, err, authdomain.ErrInvalidRole)

	_, err = svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "a@rt01.id", Password: "long-enough", RoleCode: tenancy.RoleAdminRT})
	assert.ErrorIs(t, err, tenancy.ErrTenantRequired)

	_, err = svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "root@rukun.id", Password: "long-enough", RoleCode: tenancy.RoleSuperAdmin, TenantID: tenantID(10)})
	assert.ErrorIs(t, err, authdomain.ErrInvalidRole)

	user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "  Ketua@RT01.id ", Password: "long-enough", RoleCode: "admin_rt", TenantID: tenantID(10)})
	require.NoError(t, err)
	assert.Equal(t, "ketua@rt01.id", user.Email)
	assert.Equal(t, tenancy.RoleAdminRT, user.RoleCode)
	assert.Equal(t, "ketua", user.DisplayName)

	_, err = svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "ketua@rt01.id", Password: "long-enough", RoleCode: tenancy.RoleAdminRT, TenantID: tenantID(10)})
	assert.ErrorIs(t, err, authdomain.ErrUserExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
		RoleCode: tenancy.RoleTreasurer,
		TenantID: tenantID(42),
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "nobody@example.com", Password: "correct-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestLoginAuthenticateLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    "bendahara@rt02.id",
		Password: "correct-password",
		RoleCode: tenancy.RoleTreasurer,
		TenantID: tenantID(42),
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "BENDAHARA@rt02.id", Password: "correct-password"})
	require.NoError(t, err)
	require.NotEmpty(t, result.RawToken)
	require.NotNil(t, result.Session.TenantID)
	assert.Equal(t, "42", *result.Session.TenantID)

	principal, err := svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, tenancy.RoleTreasurer, principal.RoleCode)
	require.NotNil(t, principal.TenantID)
	assert.Equal(t, snowflake.ID(42), *principal.TenantID)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, authdomain.ErrInvalidSession)

	require.NoError(t, svc.Logout(ctx, result.RawToken))
	require.NoError(t, svc.Logout(ctx, result.RawToken))

	principal, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
	assert.False(t, principal.Authenticated())
}

func TestSessionExpires(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    "root@rukun.id",
		Password: "correct-password",
		RoleCode: tenancy.RoleSuperAdmin,
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "root@rukun.id", Password: "correct-password"})
	require.NoError(t, err)
	assert.Nil(t, result.Session.TenantID)

	principal, err := svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	assert.True(t, principal.IsSuperAdmin())

	clk.Advance(2 * time.Hour)
	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionExpired)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    "sekretaris@rt03.id",
		Password: "first-password",
		RoleCode: tenancy.RoleSecretary,
		TenantID: tenantID(7),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "tiny"), authdomain.ErrWeakPassword)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "second-password"))

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "sekretaris@rt03.id", Password: "first-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "sekretaris@rt03.id", Password: "second-password"})
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, snowflake.ID(999), "third-password"), authdomain.ErrUserNotFound)
}
