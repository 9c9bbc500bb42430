package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userInfoServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"sub":"u-1","email":"analyst@example.org","name":"Analyst"}`))
		case "Bearer nosub":
			_, _ = w.Write([]byte(`{"email":"x@example.org"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateToken(t *testing.T) {
	var calls int32
	srv := userInfoServer(t, &calls)

	a, err := NewOIDCAuthenticator(srv.URL, "dashboard", "secret", srv.URL+"/userinfo", srv.Client())
	require.NoError(t, err)

	p, err := a.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.Subject)
	assert.Equal(t, "analyst@example.org", p.Email)

	_, err = a.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "accepted tokens are cached")

	_, err = a.ValidateToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "401 is not retried")

	_, err = a.ValidateToken(context.Background(), "nosub")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewOIDCAuthenticatorRequiresConfig(t *testing.T) {
	_, err := NewOIDCAuthenticator("", "client", "", "", nil)
	assert.Error(t, err)

	a, err := NewOIDCAuthenticator("https://idp.example.org/", "client", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.org/userinfo", a.userInfoURL)
}
