package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/database"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingMailer keeps every mail instead of sending it
type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
}

func (m *recordingMailer) Send(ctx context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

func (m *recordingMailer) last(t *testing.T) Mail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail was sent")
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// tokenFrom extracts the one-time token from a mailed link
func tokenFrom(t *testing.T, mail Mail) string {
	t.Helper()
	idx := strings.Index(mail.Body, "token=")
	require.GreaterOrEqual(t, idx, 0, "mail has no token link")
	return strings.TrimSpace(mail.Body[idx+len("token="):])
}

type authEnv struct {
	store   *repository.SQLStore
	jwt     *JWTManager
	mailer  *recordingMailer
	service *Service
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	swdb, err := database.NewSingleWriterDB(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { swdb.Close() })

	logger := zap.NewNop()
	store := repository.NewSQLStore(swdb)
	jwtManager := NewJWTManager(testSecret, time.Hour, cache.NewInMemoryCache(logger), logger)
	mailer := &recordingMailer{}

	return &authEnv{
		store:   store,
		jwt:     jwtManager,
		mailer:  mailer,
		service: NewService(store, jwtManager, mailer, "http://localhost:3000/", logger),
	}
}

func (e *authEnv) signup(t *testing.T, email string) *domain.User {
	t.Helper()
	user, _, err := e.service.Signup(context.Background(), commands.SignupCommand{
		Email:    email,
		Username: "student",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	return user
}

func TestService_Signup(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()

	user, session, err := env.service.Signup(ctx, commands.SignupCommand{
		Email:       "  Alex@Campus.EDU ",
		Username:    "alex",
		DisplayName: "Alex Kim",
		Password:    "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alex@campus.edu", user.Email)
	assert.False(t, user.EmailVerified)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	claims, err := env.jwt.ValidateToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	mail := env.mailer.last(t)
	assert.Equal(t, "alex@campus.edu", mail.To)
	assert.Contains(t, mail.Body, "http://localhost:3000/verify-email?token=")
}

func TestService_SignupValidation(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	env.signup(t, "taken@campus.edu")

	testCases := []struct {
		name string
		cmd  commands.SignupCommand
		code string
	}{
		{"short password", commands.SignupCommand{Email: "a@campus.edu", Username: "alex", Password: "short"}, apperrors.CodeValidation},
		{"bad email", commands.SignupCommand{Email: "not-an-email", Username: "alex", Password: "correct-horse"}, apperrors.CodeValidation},
		{"short username", commands.SignupCommand{Email: "b@campus.edu", Username: "al", Password: "correct-horse"}, apperrors.CodeValidation},
		{"duplicate email", commands.SignupCommand{Email: "TAKEN@campus.edu", Username: "other", Password: "correct-horse"}, apperrors.CodeConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.service.Signup(ctx, tc.cmd)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestService_Login(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	user := env.signup(t, "alex@campus.edu")

	got, session, err := env.service.Login(ctx, "ALEX@campus.edu", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, session.Token)

	_, _, err = env.service.Login(ctx, "alex@campus.edu", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = env.service.Login(ctx, "nobody@campus.edu", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestService_Logout(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	env.signup(t, "alex@campus.edu")

	_, session, err := env.service.Login(ctx, "alex@campus.edu", "correct-horse")
	require.NoError(t, err)
	claims, err := env.jwt.ValidateToken(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(ctx, claims))

	_, err = env.jwt.ValidateToken(ctx, session.Token)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestService_VerifyEmail(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	user := env.signup(t, "alex@campus.edu")
	token := tokenFrom(t, env.mailer.last(t))

	verified, err := env.service.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
	assert.True(t, verified.EmailVerified)

	// Tokens are single use
	_, err = env.service.VerifyEmail(ctx, token)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	err = env.service.ResendVerification(ctx, user.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestService_ResendVerification(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	user := env.signup(t, "alex@campus.edu")
	first := tokenFrom(t, env.mailer.last(t))

	require.NoError(t, env.service.ResendVerification(ctx, user.ID))
	second := tokenFrom(t, env.mailer.last(t))
	assert.NotEqual(t, first, second)

	_, err := env.service.VerifyEmail(ctx, second)
	require.NoError(t, err)
}

func TestService_PasswordReset(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	env.signup(t, "alex@campus.edu")

	require.NoError(t, env.service.ForgotPassword(ctx, "alex@campus.edu"))
	mail := env.mailer.last(t)
	assert.Equal(t, "Reset your password", mail.Subject)
	assert.Contains(t, mail.Body, "http://localhost:3000/reset-password?token=")
	token := tokenFrom(t, mail)

	err := env.service.ResetPassword(ctx, token, "short")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.NoError(t, env.service.ResetPassword(ctx, token, "new-password-123"))

	_, _, err = env.service.Login(ctx, "alex@campus.edu", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = env.service.Login(ctx, "alex@campus.edu", "new-password-123")
	require.NoError(t, err)

	err = env.service.ResetPassword(ctx, token, "another-password")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestService_ForgotPasswordUnknownEmail(t *testing.T) {
	env := newAuthEnv(t)

	require.NoError(t, env.service.ForgotPassword(context.Background(), "nobody@campus.edu"))
	assert.Equal(t, 0, env.mailer.count())
}

func TestService_ResetTokenExpires(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	env.signup(t, "alex@campus.edu")

	require.NoError(t, env.service.ForgotPassword(ctx, "alex@campus.edu"))
	token := tokenFrom(t, env.mailer.last(t))

	env.service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	err := env.service.ResetPassword(ctx, token, "new-password-123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestService_ResetTokenWrongPurpose(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	env.signup(t, "alex@campus.edu")
	verifyToken := tokenFrom(t, env.mailer.last(t))

	err := env.service.ResetPassword(ctx, verifyToken, "new-password-123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	err = env.service.ResetPassword(ctx, "", "new-password-123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestService_OAuthLogin(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()

	info := &OAuthUserInfo{
		Provider:      ProviderGoogle,
		Subject:       "google-123",
		Email:         "Sam@Campus.edu",
		EmailVerified: true,
		Name:          "Sam Lee",
	}

	created, session, err := env.service.OAuthLogin(ctx, info)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "sam@campus.edu", created.Email)
	assert.Equal(t, "sam", created.Username)
	assert.Equal(t, "Sam Lee", created.DisplayName)
	assert.True(t, created.EmailVerified)
	assert.Empty(t, created.PasswordHash)

	again, _, err := env.service.OAuthLogin(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	// OAuth-only accounts have no password to log in with
	_, _, err = env.service.Login(ctx, "sam@campus.edu", "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestService_OAuthLoginLinksExistingAccount(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	local := env.signup(t, "alex@campus.edu")

	unverified := &OAuthUserInfo{Provider: ProviderGoogle, Subject: "g-1", Email: "alex@campus.edu"}
	_, _, err := env.service.OAuthLogin(ctx, unverified)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	verified := &OAuthUserInfo{Provider: ProviderGoogle, Subject: "g-1", Email: "alex@campus.edu", EmailVerified: true}
	linked, _, err := env.service.OAuthLogin(ctx, verified)
	require.NoError(t, err)
	assert.Equal(t, local.ID, linked.ID)
	assert.Equal(t, ProviderGoogle, linked.OAuthProvider)
	assert.True(t, linked.EmailVerified)

	// The password still works after linking
	_, _, err = env.service.Login(ctx, "alex@campus.edu", "correct-horse")
	require.NoError(t, err)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "sam", usernameFromEmail("Sam@campus.edu"))
	assert.Equal(t, "j__", usernameFromEmail("j@campus.edu"))
	assert.Len(t, usernameFromEmail(strings.Repeat("a", 80)+"@campus.edu"), 50)
}
