package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/httpclient"
	"golang.org/x/oauth2"
)

var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller as reported by the identity provider.
type Principal struct {
	Subject string                 `json:"sub"`
	Email   string                 `json:"email,omitempty"`
	Name    string                 `json:"name,omitempty"`
	Claims  map[string]interface{} `json:"-"`
}

type cachedPrincipal struct {
	principal *Principal
	expires   time.Time
}

// OIDCAuthenticator validates bearer tokens by presenting them to the
// provider's userinfo endpoint. Accepted tokens are remembered for cacheTTL.
type OIDCAuthenticator struct {
	config      *oauth2.Config
	userInfoURL string
	client      *http.Client
	cacheTTL    time.Duration

	mu    sync.Mutex
	cache map[string]cachedPrincipal
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret, userInfoURL string, client *http.Client) (*OIDCAuthenticator, error) {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}
	if userInfoURL == "" {
		userInfoURL = issuer + "/userinfo"
	}
	if client == nil {
		client = httpclient.New(5 * time.Second)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	return &OIDCAuthenticator{
		config:      config,
		userInfoURL: userInfoURL,
		client:      client,
		cacheTTL:    time.Minute,
		cache:       make(map[string]cachedPrincipal),
	}, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (a *OIDCAuthenticator) cached(key string) (*Principal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(a.cache, key)
		return nil, false
	}
	return entry.principal, true
}

func (a *OIDCAuthenticator) remember(key string, p *Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[key] = cachedPrincipal{principal: p, expires: time.Now().Add(a.cacheTTL)}
}

func (a *OIDCAuthenticator) ValidateToken(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	key := tokenKey(token)
	if p, ok := a.cached(key); ok {
		return p, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	client := a.config.Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})

	var claims map[string]interface{}
	err := httpclient.Retry(ctx, 3, 100*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			if httpclient.IsRetriable(err) {
				return err
			}
			return httpclient.Permanent(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return httpclient.Permanent(fmt.Errorf("%w: userinfo returned %d", ErrInvalidToken, resp.StatusCode))
		case resp.StatusCode >= 500:
			return fmt.Errorf("userinfo returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return httpclient.Permanent(fmt.Errorf("userinfo returned %d", resp.StatusCode))
		}
		claims = map[string]interface{}{}
		if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
			return httpclient.Permanent(fmt.Errorf("decoding userinfo: %w", err))
		}
		return nil
	})
	if err != nil {
		logger.Log.WithError(err).Debug("Token rejected")
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: userinfo has no subject", ErrInvalidToken)
	}
	p := &Principal{Subject: sub, Claims: claims}
	p.Email, _ = claims["email"].(string)
	p.Name, _ = claims["name"].(string)

	a.remember(key, p)
	return p, nil
}
