package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	adminCount       int
	created          []*models.User
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return m.adminCount, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "generated"
	m.created = append(m.created, user)
	return nil
}

func newTestAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "timetable-generator",
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "admin@example.com", PasswordHash: string(password), Active: true, Role: models.RoleAdmin}}
	svc := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "admin@example.com", PasswordHash: string(password), Active: true}}

	_, err := newTestAuthService(repo).Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.lastLoginUpdated)
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	_, err := newTestAuthService(&mockAuthRepo{}).Login(context.Background(), models.LoginRequest{Email: "ghost@school.test", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "admin@example.com", PasswordHash: string(password), Active: false}}

	_, err := newTestAuthService(repo).Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginValidation(t *testing.T) {
	_, err := newTestAuthService(&mockAuthRepo{}).Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateToken(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{})
	user := &models.User{ID: "u1", Email: "admin@example.com", Role: models.RoleAdmin}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "timetable-generator", claims.Issuer)
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{})
	claims := &models.JWTClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestEnsureAdminCreatesFirstSuperAdmin(t *testing.T) {
	repo := &mockAuthRepo{}
	created, err := newTestAuthService(repo).EnsureAdmin(context.Background(), AdminAccount{Email: " Admin@Example.COM ", Password: "changeme"})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "admin@example.com", repo.created[0].Email)
	assert.Equal(t, models.RoleSuperAdmin, repo.created[0].Role)
	assert.Equal(t, "Administrator", repo.created[0].FullName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0].PasswordHash), []byte("changeme")))
}

func TestEnsureAdminSkipsWhenPresent(t *testing.T) {
	repo := &mockAuthRepo{adminCount: 1}
	created, err := newTestAuthService(repo).EnsureAdmin(context.Background(), AdminAccount{Email: "admin@example.com", Password: "changeme"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, repo.created)

	created, err = newTestAuthService(&mockAuthRepo{}).EnsureAdmin(context.Background(), AdminAccount{})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureAdminIgnoresBlankEmail(t *testing.T) {
	repo := &mockAuthRepo{}
	created, err := newTestAuthService(repo).EnsureAdmin(context.Background(), AdminAccount{Email: "  \t ", Password: "changeme"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, repo.created)
}

func TestAuthServiceProfile(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "viewer@example.com", FullName: "Viewer", Role: models.RoleViewer, Active: true}}
	svc := newTestAuthService(repo)

	info, err := svc.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, info.Role)
	assert.Equal(t, "viewer@example.com", info.Email)

	_, err = svc.Profile(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	repo.userByEmail.Active = false
	_, err = svc.Profile(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}
