package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// fakeEmbedder returns small deterministic vectors and records every
// batch it was asked to embed.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	zeroFor map[string]bool
	err     error
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if f.zeroFor[text] {
		return []float32{}
	}
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{sum, 1, 0}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.batches = append(f.batches, []string{text})
	f.mu.Unlock()
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = f.vector(t)
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func (f *fakeEmbedder) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// fakePageSource serves a fixed sequence of page batches keyed by
// cursor value.
type fakePageSource struct {
	batches map[string]*driven.PageBatch
	errs    map[string]error
	calls   []string
}

func (f *fakePageSource) FetchPages(_ context.Context, cursor string) (*driven.PageBatch, error) {
	f.calls = append(f.calls, cursor)
	if err := f.errs[cursor]; err != nil {
		return nil, err
	}
	if batch, ok := f.batches[cursor]; ok {
		return batch, nil
	}
	return &driven.PageBatch{}, nil
}

// fakeMailSource serves canned pages per window and counts calls.
type fakeMailSource struct {
	pages   []*driven.MailPage
	err     error
	errOnce bool
	calls   int
	windows []driven.MailWindow
}

func (f *fakeMailSource) FetchWindow(
	_ context.Context, w driven.MailWindow, _ string, _ int,
) (*driven.MailPage, error) {
	f.calls++
	f.windows = append(f.windows, w)
	if f.err != nil {
		err := f.err
		if f.errOnce {
			f.err = nil
		}
		return nil, err
	}
	if len(f.pages) == 0 {
		return &driven.MailPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

// fakeIssueSource serves one page of issues per page number.
type fakeIssueSource struct {
	pages map[int]*driven.IssuePage
	since []time.Time
}

func (f *fakeIssueSource) FetchIssues(
	_ context.Context, updatedAfter time.Time, page int,
) (*driven.IssuePage, error) {
	f.since = append(f.since, updatedAfter)
	if p, ok := f.pages[page]; ok {
		return p, nil
	}
	return &driven.IssuePage{}, nil
}

// fakeMessageSource serves channels with canned history and replies.
type fakeMessageSource struct {
	channels    []driven.Channel
	history     map[string]*driven.MessagePage
	replies     map[string][]driven.Message
	failChannel string
	sinces      []time.Time
}

var errChannelDown = errors.New("channel unavailable")

func (f *fakeMessageSource) ListChannels(_ context.Context) ([]driven.Channel, error) {
	return f.channels, nil
}

func (f *fakeMessageSource) FetchMessages(
	_ context.Context, channelID string, since time.Time, _ string,
) (*driven.MessagePage, error) {
	f.sinces = append(f.sinces, since)
	if channelID == f.failChannel {
		return nil, errChannelDown
	}
	if page, ok := f.history[channelID]; ok {
		return page, nil
	}
	return &driven.MessagePage{}, nil
}

func (f *fakeMessageSource) FetchReplies(
	_ context.Context, channelID, threadID string,
) ([]driven.Message, error) {
	return f.replies[channelID+":"+threadID], nil
}

// fakeReranker returns fixed scores or an error.
type fakeReranker struct {
	scores []driven.RerankScore
	err    error
	calls  int
	docs   []driven.RerankDocument
}

func (f *fakeReranker) Rerank(
	_ context.Context, _ string, docs []driven.RerankDocument, _ int,
) ([]driven.RerankScore, error) {
	f.calls++
	f.docs = docs
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}
