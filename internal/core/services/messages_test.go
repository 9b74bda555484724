package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quarry/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

func chanMsg(id, text string, ts time.Time, replies int) driven.Message {
	return driven.Message{ID: id, Text: text, Timestamp: ts, ReplyCount: replies}
}

func newMessagesFixture(source driven.MessageSource, policy domain.ChannelPolicy) (*messagesAdapter, *memory.DocStore, *memory.CursorStore) {
	docs := memory.NewDocStore()
	cursors := memory.NewCursorStore()
	adapter := newMessagesAdapter(runner{docs: docs, cursors: cursors, embedder: &fakeEmbedder{}}, source, policy)
	return adapter, docs, cursors
}

func TestMessagesSyncIndexesThreadsAsChildren(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	parent := chanMsg("100.1", "parent message", base, 1)
	reply := driven.Message{
		ID: "100.2", ThreadID: "100.1", Text: "the reply",
		Timestamp: base.Add(time.Minute),
	}
	source := &fakeMessageSource{
		channels: []driven.Channel{{ID: "C1", Name: "general"}},
		history:  map[string]*driven.MessagePage{"C1": {Messages: []driven.Message{parent}}},
		replies:  map[string][]driven.Message{"C1:100.1": {reply}},
	}
	adapter, docs, _ := newMessagesFixture(source, domain.ChannelPolicy{})

	report, err := adapter.Sync(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.ItemsSynced)

	child, err := docs.GetDocument(context.Background(), domain.SourceMessages, "C1:100.2")
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, "C1:100.1", *child.ParentID)
	assert.Equal(t, "C1", child.MetaString("channel"))
}

func TestMessagesChannelFailureIsIsolated(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	source := &fakeMessageSource{
		channels: []driven.Channel{
			{ID: "C1", Name: "general"},
			{ID: "C2", Name: "broken"},
		},
		history: map[string]*driven.MessagePage{
			"C1": {Messages: []driven.Message{chanMsg("1.1", "fine", base, 0)}},
		},
		failChannel: "C2",
	}
	adapter, _, cursors := newMessagesFixture(source, domain.ChannelPolicy{})

	report, err := adapter.Sync(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.ItemsSynced)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "C2", report.Errors[0].SourceID)

	cursor, err := cursors.Get(context.Background(), string(domain.SourceMessages))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, cursor.Status)
}

func TestMessagesChannelPolicySelection(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	source := &fakeMessageSource{
		channels: []driven.Channel{
			{ID: "C1", Name: "general"},
			{ID: "C2", Name: "private-ish"},
		},
		history: map[string]*driven.MessagePage{
			"C1": {Messages: []driven.Message{chanMsg("1.1", "kept", base, 0)}},
			"C2": {Messages: []driven.Message{chanMsg("2.1", "excluded", base, 0)}},
		},
	}
	policy := domain.ChannelPolicy{Configured: true, Channels: []string{"C1"}}
	adapter, docs, _ := newMessagesFixture(source, policy)

	report, err := adapter.Sync(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, report.ItemsSynced)
	_, err = docs.GetDocument(context.Background(), domain.SourceMessages, "C2:2.1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessagesIncrementalForwardsCursorTimestamp(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	source := &fakeMessageSource{
		channels: []driven.Channel{{ID: "C1", Name: "general"}},
		history: map[string]*driven.MessagePage{
			"C1": {Messages: []driven.Message{chanMsg("2.1", "fresh", base.Add(time.Hour), 0)}},
		},
	}
	adapter, _, cursors := newMessagesFixture(source, domain.ChannelPolicy{})
	require.NoError(t, cursors.Set(context.Background(), domain.SyncCursor{
		Key:   string(domain.SourceMessages),
		Value: domain.FormatCursorTime(base),
		Type:  domain.CursorTimestamp,
	}))

	report, err := adapter.SyncIncremental(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, report.ItemsSynced)
	require.Len(t, source.sinces, 1)
	assert.Equal(t, base, source.sinces[0])

	// A full sync of the same channel ignores the cursor entirely.
	_, err = adapter.Sync(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, source.sinces, 2)
	assert.True(t, source.sinces[1].IsZero())
}

func TestMessagesEmptySelectionSkipsSource(t *testing.T) {
	source := &fakeMessageSource{channels: []driven.Channel{{ID: "C1", Name: "general"}}}
	policy := domain.ChannelPolicy{Configured: true, Channels: nil}
	adapter, _, cursors := newMessagesFixture(source, policy)

	report, err := adapter.Sync(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 0, report.ItemsSynced)
	_, err = cursors.Get(context.Background(), string(domain.SourceMessages))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
