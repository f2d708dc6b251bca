// Package auth0 implementa el cliente del proveedor de identidad origen
// (Auth0 Management API). La resolución de duplicados lo usa como fuente
// autoritativa: users-by-email al momento de resolver, no el dump viejo.
package auth0

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/mudanza/internal/domain/types"
	"github.com/dropDatabas3/mudanza/internal/metrics"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

// User es la cuenta autoritativa en Auth0 al momento de la consulta.
type User struct {
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	LoginsCount int64      `json:"logins_count"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// APIError es cualquier respuesta no-2xx que no sea 429.
type APIError struct {
	Status  int
	Code    string `json:"errorCode"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth0: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth0: status=%d", e.Status)
}

// Client es el cliente del Management API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	// cache + singleflight: varios grupos de duplicados pueden compartir
	// email durante una ventana corta; la cuenta autoritativa no necesita
	// refetchearse por cada uno, y dos lookups concurrentes del mismo email
	// colapsan en una sola llamada.
	cache *gocache.Cache
	sf    singleflight.Group

	log *zap.Logger
}

// Option configura el Client.
type Option func(*Client)

// WithHTTPClient reemplaza el http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCacheTTL cambia el TTL del cache de users-by-email (default 5m).
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = gocache.New(ttl, time.Minute) }
}

// New crea el cliente para un tenant. domain es el host pelado
// ("acme.us.auth0.com"); el esquema y /api/v2 se agregan acá.
func New(domain, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: "https://" + strings.TrimSuffix(domain, "/") + "/api/v2",
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   gocache.New(5*time.Minute, time.Minute),
		log:     logger.Named("auth0"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UsersByEmail retorna TODAS las cuentas registradas bajo ese email
// (minúsculas; Auth0 indexa lowercased). Cero resultados no es error.
func (c *Client) UsersByEmail(ctx context.Context, email string) ([]User, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if v, ok := c.cache.Get(key); ok {
		return v.([]User), nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		users, err := c.fetchUsersByEmail(ctx, key)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, users)
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]User), nil
}

func (c *Client) fetchUsersByEmail(ctx context.Context, email string) ([]User, error) {
	u := c.baseURL + "/users-by-email?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth0 users-by-email: %w", err)
	}
	defer resp.Body.Close()
	metrics.APIRequestSeconds.WithLabelValues("auth0", "users_by_email").Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &types.RateLimitError{
			Service:    "auth0",
			RetryAfter: types.RetryAfterHint(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode/100 != 2:
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return nil, apiErr
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode users-by-email response: %w", err)
	}
	return users, nil
}
