package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	conn, err := New(Config{
		Token:   "ghp_test",
		Owner:   "acme",
		Repo:    "widgets",
		BaseURL: server.URL + "/",
	})
	require.NoError(t, err)
	return conn
}

func TestFetchIssuesSkipsPullRequests(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/repos/acme/widgets/issues"):
			assert.Equal(t, "updated", r.URL.Query().Get("sort"))
			assert.Equal(t, "asc", r.URL.Query().Get("direction"))
			assert.Equal(t, "all", r.URL.Query().Get("state"))
			json.NewEncoder(w).Encode([]map[string]any{
				{
					"number":     12,
					"title":      "Crash on empty query",
					"body":       "Searching with no text panics.",
					"state":      "open",
					"html_url":   "https://github.com/acme/widgets/issues/12",
					"assignee":   map[string]any{"login": "rosa"},
					"created_at": "2026-07-01T09:00:00Z",
					"updated_at": "2026-07-02T09:00:00Z",
				},
				{
					"number":       13,
					"title":        "Add retries",
					"pull_request": map[string]any{"url": "https://api.github.com/repos/acme/widgets/pulls/13"},
					"created_at":   "2026-07-03T09:00:00Z",
					"updated_at":   "2026-07-03T10:00:00Z",
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	page, err := conn.FetchIssues(context.Background(), time.Time{}, 1)

	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	issue := page.Issues[0]
	assert.Equal(t, "12", issue.ID)
	assert.Equal(t, "acme/widgets#12", issue.Key)
	assert.Equal(t, "Crash on empty query", issue.Title)
	assert.Equal(t, "rosa", issue.Assignee)
	assert.Equal(t, "open", issue.State)
	assert.False(t, page.HasMore)
}

func TestFetchIssuesFoldsComments(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/issues/12/comments"):
			json.NewEncoder(w).Encode([]map[string]any{
				{"body": "Reproduced on main."},
				{"body": "Fix incoming."},
			})
		case strings.HasSuffix(r.URL.Path, "/repos/acme/widgets/issues"):
			json.NewEncoder(w).Encode([]map[string]any{
				{
					"number":     12,
					"title":      "Crash on empty query",
					"comments":   2,
					"created_at": "2026-07-01T09:00:00Z",
					"updated_at": "2026-07-02T09:00:00Z",
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	page, err := conn.FetchIssues(context.Background(), time.Time{}, 1)

	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, []string{"Reproduced on main.", "Fix incoming."}, page.Issues[0].Comments)
}

func TestFetchIssuesPassesSince(t *testing.T) {
	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	var got string
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("since")
		json.NewEncoder(w).Encode([]map[string]any{})
	}))

	_, err := conn.FetchIssues(context.Background(), since, 1)

	require.NoError(t, err)
	assert.Equal(t, "2026-07-01T00:00:00Z", got)
}

func TestFetchIssuesReportsNextPage(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", `<https://api.example.com/repos/acme/widgets/issues?page=3>; rel="next", <https://api.example.com/repos/acme/widgets/issues?page=5>; rel="last"`)
		json.NewEncoder(w).Encode([]map[string]any{})
	}))

	page, err := conn.FetchIssues(context.Background(), time.Time{}, 2)

	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 3, page.NextPage)
}

func TestFetchIssuesMapsAuthError(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"message": "Bad credentials"})
	}))

	_, err := conn.FetchIssues(context.Background(), time.Time{}, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}
