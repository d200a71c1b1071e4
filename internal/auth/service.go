package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/repository"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	resetTokenTTL  = time.Hour
	verifyTokenTTL = 48 * time.Hour
)

var (
	errInvalidOneTimeToken = apperrors.NewValidationError("invalid or expired token", "token")
	errAlreadyVerified     = apperrors.NewConflict("email already verified", "")
)

// Service implements account registration, login and recovery
type Service struct {
	store     repository.Store
	jwt       *JWTManager
	mailer    Mailer
	publicURL string
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repository.Store, jwt *JWTManager, mailer Mailer, publicURL string, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		jwt:       jwt,
		mailer:    mailer,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// Signup creates a local account, mails a verification link and logs the user in
func (s *Service) Signup(ctx context.Context, cmd commands.SignupCommand) (*domain.User, *Session, error) {
	if err := domain.ValidatePassword(cmd.Password); err != nil {
		return nil, nil, err
	}
	user, err := domain.NewUser(cmd.Email, cmd.Username, cmd.DisplayName)
	if err != nil {
		return nil, nil, err
	}
	user.PasswordHash, err = HashPassword(cmd.Password)
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, nil, err
	}
	s.logger.Info("User signed up", zap.String("user_id", user.ID.String()))

	if err := s.sendVerification(ctx, user); err != nil {
		// The account exists; the user can ask for a new link
		s.logger.Warn("Failed to send verification email", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	session, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to generate token", err)
	}
	return user, session, nil
}

// Login checks the password of a local account
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, *Session, error) {
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.logger.Warn("Invalid credentials", zap.String("user_id", user.ID.String()))
		return nil, nil, domain.ErrInvalidCredentials
	}

	session, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to generate token", err)
	}
	s.logger.Info("User logged in successfully", zap.String("user_id", user.ID.String()))
	return user, session, nil
}

// Logout revokes the presented token
func (s *Service) Logout(ctx context.Context, claims *JWTClaims) error {
	if err := s.jwt.Revoke(ctx, claims); err != nil {
		return apperrors.NewDependencyUnavailable("token denylist", err)
	}
	return nil
}

// ForgotPassword mails a reset link if the account exists. It never reveals
// whether it does.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Debug("Password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	raw, err := s.issueToken(ctx, user.ID, domain.TokenPasswordReset, resetTokenTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, Mail{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Use this link within one hour to choose a new password: %s/reset-password?token=%s", s.publicURL, raw),
	})
}

// ResetPassword consumes a reset token and sets the new password
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		user, err := s.consume(ctx, tx, rawToken, domain.TokenPasswordReset)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		user.UpdatedAt = s.now().UTC()
		return tx.Users().Update(ctx, user)
	})
}

// VerifyEmail consumes a verification token
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (*domain.User, error) {
	var user *domain.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		user, err = s.consume(ctx, tx, rawToken, domain.TokenEmailVerify)
		if err != nil {
			return err
		}
		user.EmailVerified = true
		user.UpdatedAt = s.now().UTC()
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ResendVerification mails a new verification link
func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return errAlreadyVerified
	}
	return s.sendVerification(ctx, user)
}

// Me returns the authenticated user
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.store.Users().FindByID(ctx, userID)
}

// OAuthLogin signs in the provider identity: an existing link, an account
// with the same verified email, or a new account
func (s *Service) OAuthLogin(ctx context.Context, info *OAuthUserInfo) (*domain.User, *Session, error) {
	var user *domain.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		user, err = tx.Users().FindByOAuth(ctx, info.Provider, info.Subject)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}

		user, err = tx.Users().FindByEmail(ctx, info.Email)
		switch {
		case err == nil:
			if !info.EmailVerified {
				return apperrors.NewConflict("email already registered", "sign in with your password to link this account")
			}
			user.OAuthProvider = info.Provider
			user.OAuthSubject = info.Subject
			user.EmailVerified = true
			user.UpdatedAt = s.now().UTC()
			return tx.Users().Update(ctx, user)
		case errors.Is(err, domain.ErrUserNotFound):
			user, err = domain.NewUser(info.Email, usernameFromEmail(info.Email), info.Name)
			if err != nil {
				return err
			}
			user.OAuthProvider = info.Provider
			user.OAuthSubject = info.Subject
			user.EmailVerified = info.EmailVerified
			return tx.Users().Create(ctx, user)
		default:
			return err
		}
	})
	if err != nil {
		return nil, nil, err
	}

	session, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to generate token", err)
	}
	s.logger.Info("User logged in with OAuth",
		zap.String("user_id", user.ID.String()),
		zap.String("provider", info.Provider))
	return user, session, nil
}

func (s *Service) sendVerification(ctx context.Context, user *domain.User) error {
	raw, err := s.issueToken(ctx, user.ID, domain.TokenEmailVerify, verifyTokenTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, Mail{
		To:      user.Email,
		Subject: "Verify your email",
		Body:    fmt.Sprintf("Confirm your address: %s/verify-email?token=%s", s.publicURL, raw),
	})
}

func (s *Service) issueToken(ctx context.Context, userID uuid.UUID, purpose domain.TokenPurpose, ttl time.Duration) (string, error) {
	raw, hash, err := newOneTimeToken()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	err = s.store.Users().CreateToken(ctx, &domain.UserToken{
		TokenHash: hash,
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Service) consume(ctx context.Context, tx repository.Store, rawToken string, purpose domain.TokenPurpose) (*domain.User, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errInvalidOneTimeToken
	}
	hash := hashToken(rawToken)
	token, err := tx.Users().FindToken(ctx, hash, purpose)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, errInvalidOneTimeToken
		}
		return nil, err
	}
	now := s.now().UTC()
	if !token.Usable(now) {
		return nil, errInvalidOneTimeToken
	}
	if err := tx.Users().ConsumeToken(ctx, hash, now); err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			return nil, errInvalidOneTimeToken
		}
		return nil, err
	}
	return tx.Users().FindByID(ctx, token.UserID)
}

func usernameFromEmail(email string) string {
	local := domain.NormalizeEmail(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	for len(local) < 3 {
		local += "_"
	}
	if len(local) > 50 {
		local = local[:50]
	}
	return local
}
