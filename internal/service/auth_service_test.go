package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/classbridge-api/internal/models"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
)

type fakeUserRepo struct {
	users         map[string]models.User
	refreshTokens map[string]models.RefreshToken
	auditActions  []string
	revoked       []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:         make(map[string]models.User),
		refreshTokens: make(map[string]models.RefreshToken),
	}
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			user := u
			return &user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.refreshTokens[token.Token] = *token
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := f.refreshTokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for key, t := range f.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			f.refreshTokens[key] = t
		}
	}
	f.revoked = append(f.revoked, id)
	return nil
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (f *fakeUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.auditActions = append(f.auditActions, log.Action)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "classbridge-test",
	}
}

func TestAuthServiceSignupAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "ada@example.com",
		Password: "s3cret!",
		FullName: "Ada Lovelace",
		Role:     models.RoleTeacher,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleTeacher, res.User.Role)
	assert.Contains(t, repo.auditActions, models.AuditActionSignup)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	claims, err := svc.ValidateToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceSignupDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email: "ada@example.com", Password: "s3cret!", FullName: "Ada Lovelace", Role: models.RoleTeacher,
	})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), models.SignupRequest{
		Email: "ada@example.com", Password: "another-secret", FullName: "Imposter", Role: models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email: "ada@example.com", Password: "s3cret!", FullName: "Ada Lovelace", Role: models.RoleStudent,
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		Email: "ada@example.com", Password: "s3cret!", FullName: "Ada Lovelace", Role: models.RoleStudent,
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, repo.revoked)

	// The used token is revoked and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo(), nil, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)

	other := NewAuthService(newFakeUserRepo(), nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})
	res, err := other.Signup(context.Background(), models.SignupRequest{
		Email: "eve@example.com", Password: "s3cret!", FullName: "Eve", Role: models.RoleStudent,
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken)
	require.Error(t, err)
}
