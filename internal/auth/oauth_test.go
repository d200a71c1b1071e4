package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"campus-marketplace/internal/cache"
	"campus-marketplace/internal/config"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// fakeGoogle serves the token and userinfo endpoints
func fakeGoogle(t *testing.T, userinfoStatus int, info map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(userinfoStatus)
		json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogle(t *testing.T, srv *httptest.Server) *GoogleOAuth {
	t.Helper()
	return NewGoogleOAuthWithConfig(&oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/v1/auth/oauth/google/callback",
		Scopes:       []string{"openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
	}, srv.URL+"/userinfo", cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

var googleIdentity = map[string]interface{}{
	"sub":            "google-123",
	"email":          "sam@campus.edu",
	"email_verified": true,
	"name":           "Sam Lee",
}

func TestGoogleOAuth_Exchange(t *testing.T) {
	google := newTestGoogle(t, fakeGoogle(t, http.StatusOK, googleIdentity))
	ctx := context.Background()

	authURL, err := google.AuthURL(ctx)
	require.NoError(t, err)
	assert.Contains(t, authURL, "client_id=client")
	state := stateFrom(t, authURL)

	info, err := google.Exchange(ctx, state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, info.Provider)
	assert.Equal(t, "google-123", info.Subject)
	assert.Equal(t, "sam@campus.edu", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Sam Lee", info.Name)

	// A state cannot be replayed
	_, err = google.Exchange(ctx, state, "good-code")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestGoogleOAuth_ExchangeFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown state", func(t *testing.T) {
		google := newTestGoogle(t, fakeGoogle(t, http.StatusOK, googleIdentity))
		_, err := google.Exchange(ctx, "forged", "good-code")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	})

	t.Run("missing code", func(t *testing.T) {
		google := newTestGoogle(t, fakeGoogle(t, http.StatusOK, googleIdentity))
		_, err := google.Exchange(ctx, "state", "")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))
	})

	t.Run("rejected code", func(t *testing.T) {
		google := newTestGoogle(t, fakeGoogle(t, http.StatusOK, googleIdentity))
		authURL, err := google.AuthURL(ctx)
		require.NoError(t, err)
		_, err = google.Exchange(ctx, stateFrom(t, authURL), "bad-code")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	})

	t.Run("userinfo down", func(t *testing.T) {
		google := newTestGoogle(t, fakeGoogle(t, http.StatusInternalServerError, map[string]interface{}{}))
		authURL, err := google.AuthURL(ctx)
		require.NoError(t, err)
		_, err = google.Exchange(ctx, stateFrom(t, authURL), "good-code")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeDependencyUnavailable))
	})

	t.Run("identity without email", func(t *testing.T) {
		google := newTestGoogle(t, fakeGoogle(t, http.StatusOK, map[string]interface{}{"sub": "google-123"}))
		authURL, err := google.AuthURL(ctx)
		require.NoError(t, err)
		_, err = google.Exchange(ctx, stateFrom(t, authURL), "good-code")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	})
}

func TestGoogleOAuth_NotConfigured(t *testing.T) {
	google := NewGoogleOAuth(&config.Config{}, cache.NewInMemoryCache(zap.NewNop()), zap.NewNop())
	assert.Nil(t, google)

	_, err := google.AuthURL(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDependencyUnavailable))

	_, err = google.Exchange(context.Background(), "state", "code")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDependencyUnavailable))
}
