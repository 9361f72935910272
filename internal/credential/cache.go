package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// GrantTypeJWTBearer is the OAuth 2.0 grant type for JWT assertions.
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// Defaults applied by New when the Config leaves them zero.
const (
	DefaultLifetime = time.Hour
	DefaultTimeout  = 15 * time.Second
	DefaultSkew     = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the service account credentials and exchange settings.
type Config struct {
	// Endpoint is the identity endpoint; it is also the assertion audience.
	Endpoint string

	// KeyID is sent in the assertion's "kid" header.
	KeyID string

	// KeySecret signs the assertion.
	KeySecret string

	// ServiceAccount is the assertion issuer.
	ServiceAccount string

	// Lifetime is the assertion and token lifetime. Default one hour.
	Lifetime time.Duration

	// Timeout bounds a single exchange. Default 15s.
	Timeout time.Duration

	// Skew renews the token this long before it expires. Default 30s.
	Skew time.Duration
}

// Cache issues and caches bearer tokens. It implements oauth2.TokenSource.
//
// Thread Safety: All methods are safe for concurrent use. Renewal is
// single-flight: concurrent callers during expiry share one exchange.
type Cache struct {
	cfg        Config
	httpClient *http.Client
	logger     Logger
	now        func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	token     *oauth2.Token
	expiresAt time.Time
}

// New creates a Cache. Endpoint, KeyID, KeySecret and ServiceAccount are required.
func New(cfg Config) (*Cache, error) {
	var missing []string
	if cfg.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if cfg.KeyID == "" {
		missing = append(missing, "key id")
	}
	if cfg.KeySecret == "" {
		missing = append(missing, "key secret")
	}
	if cfg.ServiceAccount == "" {
		missing = append(missing, "service account")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}

	return &Cache{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     noopLogger{},
		now:        time.Now,
	}, nil
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// SetHTTPClient replaces the client used for exchanges.
func (c *Cache) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock replaces the time source. Used by tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// GetToken returns the cached token, exchanging a fresh assertion when the
// cached one has expired. Failures wrap ErrAuth and are never cached.
func (c *Cache) GetToken(ctx context.Context) (*oauth2.Token, error) {
	if tok := c.cached(); tok != nil {
		return tok, nil
	}

	v, err, shared := c.group.Do("token", func() (any, error) {
		// A flight that finished just before this one started may have
		// already refreshed the cache.
		if tok := c.cached(); tok != nil {
			return tok, nil
		}
		return c.renew(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight token exchange")
	}

	tok := *v.(*oauth2.Token)
	return &tok, nil
}

// Token implements oauth2.TokenSource using the configured timeout.
func (c *Cache) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	return c.GetToken(ctx)
}

// Invalidate drops the cached token so the next call exchanges a new one.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	c.expiresAt = time.Time{}
	tokenValid.Set(0)
}

// cached returns a copy of the cached token if it is still valid.
func (c *Cache) cached() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil || !c.now().Before(c.expiresAt.Add(-c.cfg.Skew)) {
		return nil
	}
	tok := *c.token
	return &tok
}

// renew exchanges a new assertion and stores the result.
func (c *Cache) renew(ctx context.Context) (*oauth2.Token, error) {
	// One caller's cancellation must not fail the callers sharing this flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	c.mu.Lock()
	now := c.now()
	c.mu.Unlock()

	tok, err := c.exchange(ctx, now)
	if err != nil {
		tokenExchanges.WithLabelValues("failure").Inc()
		tokenValid.Set(0)
		c.logger.Warn("token exchange failed", "endpoint", c.cfg.Endpoint, "error", err)
		return nil, err
	}

	c.mu.Lock()
	c.token = tok
	c.expiresAt = tok.Expiry
	c.mu.Unlock()

	tokenExchanges.WithLabelValues("success").Inc()
	tokenValid.Set(1)
	c.logger.Info("access token renewed", "expires_at", tok.Expiry)
	return tok, nil
}

// tokenResponse is the identity endpoint's JSON response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// exchange signs an assertion and trades it for an access token.
func (c *Cache) exchange(ctx context.Context, now time.Time) (*oauth2.Token, error) {
	assertion, err := c.signAssertion(now)
	if err != nil {
		return nil, fmt.Errorf("%w: signing assertion: %w", ErrAuth, err)
	}

	form := url.Values{
		"assertion":  {assertion},
		"grant_type": {GrantTypeJWTBearer},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: exchanging assertion: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrAuth, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrAuth, err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", ErrAuth)
	}

	expiry := now.Add(c.cfg.Lifetime)
	if payload.ExpiresIn > 0 {
		if server := now.Add(time.Duration(payload.ExpiresIn) * time.Second); server.Before(expiry) {
			expiry = server
		}
	}
	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   tokenType,
		Expiry:      expiry,
	}, nil
}

// signAssertion builds the HS256 assertion for the jwt-bearer grant.
func (c *Cache) signAssertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(c.cfg.Lifetime).Unix(),
		"aud": c.cfg.Endpoint,
		"iss": c.cfg.ServiceAccount,
		"jti": uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = c.cfg.KeyID
	return token.SignedString([]byte(c.cfg.KeySecret))
}
