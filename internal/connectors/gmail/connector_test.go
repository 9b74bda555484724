package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	conn, err := New(context.Background(), Config{AccessToken: "tok", Endpoint: server.URL + "/"})
	require.NoError(t, err)
	return conn
}

func encodeBody(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestFetchWindowQueriesUnixBounds(t *testing.T) {
	after := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC)
	var query string
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages") {
			query = r.URL.Query().Get("q")
			json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{}})
			return
		}
		http.NotFound(w, r)
	}))

	_, err := conn.FetchWindow(context.Background(), driven.MailWindow{After: after, Before: before}, "", 25)

	require.NoError(t, err)
	assert.Equal(t, "after:1785542400 before:1786147200", query)
}

func TestFetchWindowResolvesMessages(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/messages"):
			json.NewEncoder(w).Encode(map[string]any{
				"messages":      []map[string]any{{"id": "m1", "threadId": "t1"}},
				"nextPageToken": "tok-2",
			})
		case strings.HasSuffix(r.URL.Path, "/messages/m1"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":           "m1",
				"threadId":     "t1",
				"internalDate": "1754524800000",
				"snippet":      "short preview",
				"payload": map[string]any{
					"mimeType": "multipart/alternative",
					"headers": []map[string]any{
						{"name": "Subject", "value": "Release notes"},
						{"name": "From", "value": "dev@example.com"},
					},
					"parts": []map[string]any{
						{"mimeType": "text/html", "body": map[string]any{"data": encodeBody("<p>hi</p>")}},
						{"mimeType": "text/plain", "body": map[string]any{"data": encodeBody("plain body")}},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	page, err := conn.FetchWindow(context.Background(), driven.MailWindow{
		After:  time.Unix(1754000000, 0),
		Before: time.Unix(1755000000, 0),
	}, "", 25)

	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "tok-2", page.NextPageToken)
	msg := page.Messages[0]
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, "Release notes", msg.Subject)
	assert.Equal(t, "dev@example.com", msg.From)
	assert.Equal(t, "plain body", msg.Body)
	assert.Equal(t, int64(1754524800), msg.Date.Unix())
}

func TestFetchWindowFallsBackToSnippet(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/messages"):
			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]any{{"id": "m2"}},
			})
		case strings.HasSuffix(r.URL.Path, "/messages/m2"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":           "m2",
				"internalDate": "1754524800000",
				"snippet":      "only a snippet",
				"payload": map[string]any{
					"mimeType": "text/html",
					"body":     map[string]any{"data": encodeBody("<p>html only</p>")},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	page, err := conn.FetchWindow(context.Background(), driven.MailWindow{
		After:  time.Unix(1754000000, 0),
		Before: time.Unix(1755000000, 0),
	}, "", 25)

	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "only a snippet", page.Messages[0].Body)
}

func TestFetchWindowMapsAuthError(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 401, "message": "Invalid Credentials"},
		})
	}))

	_, err := conn.FetchWindow(context.Background(), driven.MailWindow{
		After:  time.Unix(1754000000, 0),
		Before: time.Unix(1755000000, 0),
	}, "", 25)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}
