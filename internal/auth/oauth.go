package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/config"
	apperrors "campus-marketplace/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle = "google"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	stateTTL          = 10 * time.Minute
)

// ErrOAuthNotConfigured is returned when no client credentials are set
var ErrOAuthNotConfigured = errors.New("oauth provider not configured")

// OAuthUserInfo is the identity returned by the provider
type OAuthUserInfo struct {
	Provider      string
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// GoogleOAuth runs the authorization code flow against Google
type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
	states      cache.Cache
	logger      *zap.Logger
}

// NewGoogleOAuth returns nil when the client id is not configured
func NewGoogleOAuth(cfg *config.Config, states cache.Cache, logger *zap.Logger) *GoogleOAuth {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil
	}
	return NewGoogleOAuthWithConfig(&oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoints.Google,
	}, googleUserInfoURL, states, logger)
}

// NewGoogleOAuthWithConfig allows overriding the endpoints
func NewGoogleOAuthWithConfig(oauthConfig *oauth2.Config, userInfoURL string, states cache.Cache, logger *zap.Logger) *GoogleOAuth {
	return &GoogleOAuth{
		config:      oauthConfig,
		userInfoURL: userInfoURL,
		states:      states,
		logger:      logger,
	}
}

// AuthURL stores a fresh state and returns the consent page URL
func (g *GoogleOAuth) AuthURL(ctx context.Context) (string, error) {
	if g == nil {
		return "", apperrors.NewDependencyUnavailable("google oauth", ErrOAuthNotConfigured)
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := hex.EncodeToString(buf)
	if err := g.states.Set(ctx, cache.OAuthStatePrefix+state, []byte("1"), stateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange checks the state, trades the code for a token and fetches the identity
func (g *GoogleOAuth) Exchange(ctx context.Context, state, code string) (*OAuthUserInfo, error) {
	if g == nil {
		return nil, apperrors.NewDependencyUnavailable("google oauth", ErrOAuthNotConfigured)
	}
	if state == "" || code == "" {
		return nil, apperrors.NewInvalidRequest("missing oauth state or code", "")
	}

	key := cache.OAuthStatePrefix + state
	ok, err := g.states.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check oauth state: %w", err)
	}
	if !ok {
		return nil, apperrors.NewUnauthorized("invalid oauth state", "state expired or unknown")
	}
	// One use per state
	if err := g.states.Delete(ctx, key); err != nil {
		g.logger.Warn("Failed to delete oauth state", zap.Error(err))
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		g.logger.Warn("OAuth code exchange failed", zap.Error(err))
		return nil, apperrors.NewUnauthorized("oauth code exchange failed", "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, apperrors.NewDependencyUnavailable("google userinfo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.NewDependencyUnavailable("google userinfo",
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var info OAuthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.Subject == "" || info.Email == "" {
		return nil, apperrors.NewUnauthorized("incomplete oauth identity", "subject and email are required")
	}
	info.Provider = ProviderGoogle
	return &info, nil
}
