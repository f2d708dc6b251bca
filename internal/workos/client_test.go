package workos

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/mudanza/internal/domain/types"
	"github.com/dropDatabas3/mudanza/internal/rate"
)

const testBase = "https://workos.test"

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return New(testBase, "sk_test_123", append([]Option{WithHTTPClient(hc)}, opts...)...)
}

func TestCreateUser(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBase+"/user_management/users",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk_test_123", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]any{
				"id":             "user_01ABC",
				"email":          "ana@example.com",
				"email_verified": true,
			})
		})

	u, err := c.CreateUser(context.Background(), CreateUserRequest{
		Email:         "ana@example.com",
		EmailVerified: true,
		ExternalID:    "auth0|abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "user_01ABC", u.ID)
	assert.True(t, u.EmailVerified)
}

func TestGetUser_NotFound(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/user_management/users/user_gone",
		httpmock.NewStringResponder(http.StatusNotFound, `{"code":"entity_not_found"}`))

	_, err := c.GetUser(context.Background(), "user_gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	c := newTestClient(t)

	verified := true
	httpmock.RegisterResponder(http.MethodPut, testBase+"/user_management/users/user_01",
		func(req *http.Request) (*http.Response, error) {
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"id":             "user_01",
				"email":          "b@example.com",
				"email_verified": true,
				"first_name":     "Bea",
			})
		})

	u, err := c.UpdateUser(context.Background(), "user_01", UpdateUserRequest{
		EmailVerified: &verified,
		FirstName:     "Bea",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bea", u.FirstName)
}

func TestListUsersByEmail_LowercasesQuery(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBase+"/user_management/users",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "mixed.case@example.com", req.URL.Query().Get("email"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"data": []map[string]any{{"id": "user_77", "email": "mixed.case@example.com"}},
			})
		})

	users, err := c.ListUsersByEmail(context.Background(), "Mixed.Case@Example.COM")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "user_77", users[0].ID)
}

func TestRateLimit_WithRetryAfter(t *testing.T) {
	c := newTestClient(t)

	resp := httpmock.NewStringResponse(http.StatusTooManyRequests, `{"message":"rate limit exceeded"}`)
	resp.Header = http.Header{"Retry-After": []string{"7"}}
	httpmock.RegisterResponder(http.MethodPost, testBase+"/user_management/users",
		httpmock.ResponderFromResponse(resp))

	_, err := c.CreateUser(context.Background(), CreateUserRequest{Email: "x@y.com"})
	rl, ok := types.AsRateLimit(err)
	require.True(t, ok, "429 must surface as RateLimitError, got %v", err)
	assert.Equal(t, "workos", rl.Service)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestAPIError_CarriesStatusAndCode(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBase+"/user_management/users",
		httpmock.NewStringResponder(http.StatusUnprocessableEntity,
			`{"code":"email_not_available","message":"email taken"}`))

	_, err := c.CreateUser(context.Background(), CreateUserRequest{Email: "x@y.com"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "email_not_available", apiErr.Code)
}

func TestRateGate_DeniedBudgetLooksLikeA429(t *testing.T) {
	// presupuesto local agotado: misma señal que un 429 del servicio
	c := newTestClient(t, WithRateGate(rate.NewMemoryLimiter(1, time.Minute)))

	httpmock.RegisterResponder(http.MethodGet, testBase+"/user_management/users/user_01",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"user_01","email":"a@b.co"}`))

	_, err := c.GetUser(context.Background(), "user_01")
	require.NoError(t, err)

	_, err = c.GetUser(context.Background(), "user_01")
	rl, ok := types.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, "local", rl.Service)
	assert.Positive(t, rl.RetryAfter)
	// y la segunda request nunca salió
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
