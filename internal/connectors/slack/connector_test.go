package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	return New(Config{Token: "xoxb-test", BaseURL: server.URL})
}

func TestListChannelsPaginates(t *testing.T) {
	calls := 0
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations.list", r.URL.Path)
		require.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		calls++
		if calls == 1 {
			assert.Empty(t, r.URL.Query().Get("cursor"))
			json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"channels": []map[string]any{
					{"id": "C1", "name": "general"},
					{"id": "C2", "name": "random"},
				},
				"response_metadata": map[string]any{"next_cursor": "page2"},
			})
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("cursor"))
		json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"channels": []map[string]any{{"id": "C3", "name": "eng"}},
		})
	}))

	channels, err := conn.ListChannels(context.Background())

	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "C1", channels[0].ID)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, "eng", channels[2].Name)
}

func TestFetchMessagesSkipsSubtypes(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations.history", r.URL.Path)
		assert.Equal(t, "C1", r.URL.Query().Get("channel"))
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"type": "message", "ts": "1700000100.000200", "user": "U1", "text": "hello", "reply_count": 2},
				{"type": "message", "subtype": "channel_join", "ts": "1700000050.000100", "text": "joined"},
				{"type": "message", "ts": "1700000000.000100", "user": "U2", "text": "first"},
			},
			"has_more": false,
		})
	}))

	page, err := conn.FetchMessages(context.Background(), "C1", time.Time{}, "")

	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "1700000100.000200", page.Messages[0].ID)
	assert.Equal(t, "hello", page.Messages[0].Text)
	assert.Equal(t, 2, page.Messages[0].ReplyCount)
	assert.Equal(t, int64(1700000100), page.Messages[0].Timestamp.Unix())
}

func TestFetchMessagesPassesOldest(t *testing.T) {
	oldest := time.Unix(1700000000, 0).UTC()
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1700000000.000000", r.URL.Query().Get("oldest"))
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "messages": []map[string]any{}})
	}))

	_, err := conn.FetchMessages(context.Background(), "C1", oldest, "")

	require.NoError(t, err)
}

func TestFetchRepliesExcludesParent(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations.replies", r.URL.Path)
		assert.Equal(t, "1700000000.000100", r.URL.Query().Get("ts"))
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"type": "message", "ts": "1700000000.000100", "thread_ts": "1700000000.000100", "user": "U1", "text": "parent"},
				{"type": "message", "ts": "1700000010.000100", "thread_ts": "1700000000.000100", "user": "U2", "text": "reply one"},
				{"type": "message", "ts": "1700000020.000100", "thread_ts": "1700000000.000100", "user": "U3", "text": "reply two"},
			},
			"has_more": false,
		})
	}))

	replies, err := conn.FetchReplies(context.Background(), "C1", "1700000000.000100")

	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "reply one", replies[0].Text)
	assert.Equal(t, "1700000000.000100", replies[0].ThreadID)
}

func TestAuthErrorMapped(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_auth"})
	}))

	_, err := conn.ListChannels(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestRateLimitErrorMapped(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "ratelimited"})
	}))

	_, err := conn.ListChannels(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
