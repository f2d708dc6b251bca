package dupes

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/mudanza/internal/auth0"
	"github.com/dropDatabas3/mudanza/internal/ledger"
)

const a0Base = "https://tenant.test.auth0.com/api/v2/users-by-email"

func openSinks(t *testing.T, dir string) Sinks {
	t.Helper()
	open := func(name string) *ledger.Writer {
		w, err := ledger.OpenWriter(filepath.Join(dir, name))
		require.NoError(t, err)
		t.Cleanup(func() { w.Close() })
		return w
	}
	return Sinks{
		Keep:         open("keep.jsonl"),
		ManualReview: open("manual_review.jsonl"),
		Skip:         open("skip.jsonl"),
	}
}

func readDecisions(t *testing.T, path string) []Decision {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []Decision
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(sc.Bytes(), &d))
		out = append(out, d)
	}
	return out
}

func TestResolver_PartitionsIntoDisjointSinks(t *testing.T) {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	// cada email responde con un shape distinto: keep, review, skip
	httpmock.RegisterResponder(http.MethodGet, a0Base,
		func(req *http.Request) (*http.Response, error) {
			switch req.URL.Query().Get("email") {
			case "keep@example.com":
				return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{
					{"user_id": "auth0|k1", "logins_count": 4},
				})
			case "review@example.com":
				return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{
					{"user_id": "auth0|r1", "logins_count": 1},
					{"user_id": "auth0|r2", "logins_count": 9},
				})
			default:
				return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
			}
		})

	groups := []Group{
		{Email: "keep@example.com", Candidates: []Candidate{
			{ID: "k-a", Email: "keep@example.com", Auth0Sub: "auth0|k1"},
			{ID: "k-b", Email: "keep@example.com", Auth0Sub: "auth0|k-dead"},
		}},
		{Email: "review@example.com", Candidates: []Candidate{
			{ID: "r-a", Email: "review@example.com", Auth0Sub: "auth0|r1"},
			{ID: "r-b", Email: "review@example.com", Auth0Sub: "auth0|r2"},
		}},
		{Email: "skip@example.com", Candidates: []Candidate{
			{ID: "s-a", Email: "skip@example.com", Auth0Sub: "auth0|s-dead"},
		}},
	}

	dir := t.TempDir()
	sinks := openSinks(t, dir)
	a0c := auth0.New("tenant.test.auth0.com", "mgmt-token", auth0.WithHTTPClient(hc))
	r := NewResolver(a0c, Params{Concurrency: 2, DefaultRetryAfter: 10 * time.Millisecond}, sinks)

	sum, err := r.Run(context.Background(), groups)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.TotalEmails)
	assert.Equal(t, 1, sum.Actions.Keep)
	assert.Equal(t, 1, sum.Actions.ManualReview)
	assert.Equal(t, 1, sum.Actions.Skip)

	keeps := readDecisions(t, filepath.Join(dir, "keep.jsonl"))
	require.Len(t, keeps, 1)
	assert.Equal(t, "k-a", keeps[0].Chosen.ID)

	reviews := readDecisions(t, filepath.Join(dir, "manual_review.jsonl"))
	require.Len(t, reviews, 1)
	assert.Equal(t, "r-b", reviews[0].Chosen.ID, "suggestion follows logins_count")
	assert.True(t, reviews[0].RequiresManualReview)

	skips := readDecisions(t, filepath.Join(dir, "skip.jsonl"))
	require.Len(t, skips, 1)
	assert.Nil(t, skips[0].Chosen)
}

func TestResolver_RateLimitRetriesGroup(t *testing.T) {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, a0Base,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, `{}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `[{"user_id":"auth0|a","logins_count":1}]`), nil
		})

	dir := t.TempDir()
	sinks := openSinks(t, dir)
	a0c := auth0.New("tenant.test.auth0.com", "mgmt-token", auth0.WithHTTPClient(hc))
	r := NewResolver(a0c, Params{Concurrency: 1, DefaultRetryAfter: 10 * time.Millisecond}, sinks)

	sum, err := r.Run(context.Background(), []Group{
		{Email: "retry@example.com", Candidates: []Candidate{
			{ID: "c1", Email: "retry@example.com", Auth0Sub: "auth0|a"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Actions.Keep)
	assert.Equal(t, 2, calls)
}

func TestResolver_ExhaustedRetriesAbort(t *testing.T) {
	// a diferencia de la migración, acá rendirse es fatal: un grupo sin
	// decisión rompería la partición total del input
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, a0Base,
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{}`))

	dir := t.TempDir()
	sinks := openSinks(t, dir)
	a0c := auth0.New("tenant.test.auth0.com", "mgmt-token", auth0.WithHTTPClient(hc))
	r := NewResolver(a0c, Params{Concurrency: 1, DefaultRetryAfter: time.Millisecond, MaxRetries: 1}, sinks)

	_, err := r.Run(context.Background(), []Group{
		{Email: "doomed@example.com", Candidates: []Candidate{
			{ID: "c1", Email: "doomed@example.com", Auth0Sub: "auth0|a"},
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doomed@example.com")
}

func TestResolver_SummaryCountsMatchSinkLines(t *testing.T) {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, a0Base,
		func(req *http.Request) (*http.Response, error) {
			// todos sobreviven: emails con un candidato van a keep
			email := req.URL.Query().Get("email")
			return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{
				{"user_id": "auth0|" + email, "logins_count": 1},
			})
		})

	var groups []Group
	for i := 0; i < 7; i++ {
		email := fmt.Sprintf("u%d@example.com", i)
		groups = append(groups, Group{Email: email, Candidates: []Candidate{
			{ID: fmt.Sprintf("c%d", i), Email: email, Auth0Sub: "auth0|" + email},
		}})
	}

	dir := t.TempDir()
	sinks := openSinks(t, dir)
	a0c := auth0.New("tenant.test.auth0.com", "mgmt-token", auth0.WithHTTPClient(hc))
	r := NewResolver(a0c, Params{Concurrency: 3, DefaultRetryAfter: 10 * time.Millisecond}, sinks)

	sum, err := r.Run(context.Background(), groups)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.TotalEmails)
	assert.Equal(t, 7, sum.Actions.Keep)

	keeps := readDecisions(t, filepath.Join(dir, "keep.jsonl"))
	assert.Len(t, keeps, 7)
	assert.Empty(t, readDecisions(t, filepath.Join(dir, "manual_review.jsonl")))
	assert.Empty(t, readDecisions(t, filepath.Join(dir, "skip.jsonl")))
}
