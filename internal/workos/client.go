// Package workos implementa el cliente del servicio de identidad destino
// (WorkOS User Management). Solo cubre las operaciones que la migración
// necesita: create, get, update y búsqueda por email.
package workos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/domain/types"
	"github.com/dropDatabas3/mudanza/internal/metrics"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
	"github.com/dropDatabas3/mudanza/internal/rate"
)

const defaultBaseURL = "https://api.workos.com"

// ErrNotFound: el user id reclamado por el registro no existe en WorkOS.
var ErrNotFound = errors.New("workos: user not found")

// User es la cuenta en el servicio destino.
type User struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	ExternalID    string            `json:"external_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at,omitempty"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
}

// CreateUserRequest crea la cuenta nueva con back-reference al user de Auth0
// (external_id + metadata).
type CreateUserRequest struct {
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	FirstName     string            `json:"first_name,omitempty"`
	LastName      string            `json:"last_name,omitempty"`
	ExternalID    string            `json:"external_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// UpdateUserRequest mergea flags/nombres/metadata sobre una cuenta existente.
// Los punteros distinguen "no tocar" de "setear en cero".
type UpdateUserRequest struct {
	EmailVerified *bool             `json:"email_verified,omitempty"`
	FirstName     string            `json:"first_name,omitempty"`
	LastName      string            `json:"last_name,omitempty"`
	ExternalID    string            `json:"external_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// APIError es cualquier respuesta no-2xx que no sea 429 ni 404.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("workos: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("workos: status=%d", e.Status)
}

// Client es el cliente HTTP del User Management API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	gate    rate.Limiter
	log     *zap.Logger
}

// Option configura el Client.
type Option func(*Client)

// WithHTTPClient reemplaza el http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateGate instala el presupuesto local: se consume antes de cada request
// y un presupuesto agotado se reporta como el mismo RateLimitError que un 429,
// así un solo camino de backoff cubre los dos casos.
func WithRateGate(l rate.Limiter) Option {
	return func(c *Client) { c.gate = l }
}

// New crea el cliente. baseURL vacío usa el endpoint público.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.Named("workos"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateUser crea la cuenta en WorkOS.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, "/user_management/users", "create_user", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser trae la cuenta por id.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	path := "/user_management/users/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, "get_user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser actualiza la cuenta por id.
func (c *Client) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*User, error) {
	var u User
	path := "/user_management/users/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, path, "update_user", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersByEmail busca cuentas por email (siempre en minúsculas: WorkOS
// indexa lowercased).
func (c *Client) ListUsersByEmail(ctx context.Context, email string) ([]User, error) {
	var out struct {
		Data []User `json:"data"`
	}
	path := "/user_management/users?email=" + url.QueryEscape(strings.ToLower(email))
	if err := c.do(ctx, http.MethodGet, path, "list_users", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path, op string, body, out any) error {
	if c.gate != nil {
		res, err := c.gate.Allow(ctx, "workos")
		if err != nil {
			// fail-open: un limiter caído no debe frenar la migración
			c.log.Warn("rate gate unavailable", logger.Err(err))
		} else if !res.Allowed {
			return &types.RateLimitError{Service: "local", RetryAfter: res.RetryAfter}
		}
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("workos %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.APIRequestSeconds.WithLabelValues("workos", op).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &types.RateLimitError{
			Service:    "workos",
			RetryAfter: types.RetryAfterHint(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
	case resp.StatusCode/100 != 2:
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
