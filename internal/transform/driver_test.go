package transform

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simp-lee/epubtrans/internal/logging"
	"github.com/simp-lee/epubtrans/internal/progress"
	"github.com/simp-lee/epubtrans/segment"
)

// memStore is an in-memory Store.
type memStore struct {
	mu     sync.Mutex
	done   map[segment.Key]string
	failed map[segment.Key]string
}

func newMemStore() *memStore {
	return &memStore{done: map[segment.Key]string{}, failed: map[segment.Key]string{}}
}

func (m *memStore) Has(k segment.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.done[k]
	return ok, nil
}

func (m *memStore) Put(k segment.Key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[k] = text
	delete(m.failed, k)
	return nil
}

func (m *memStore) MarkFailed(k segment.Key, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[k] = cause.Error()
	return nil
}

func testIndex(t *testing.T) *segment.Index {
	t.Helper()
	s, err := segment.New(5, 20)
	require.NoError(t, err)
	c1 := s.Split("c1", []string{"First paragraph here.", "Second one."})
	c2 := s.Split("c2", []string{"Another chapter with words."})
	return segment.NewIndex(5, 20,
		[]segment.ChapterEntry{
			{ID: "c1", Title: "One", Paragraphs: 2, Segments: len(c1)},
			{ID: "c2", Title: "Two", Paragraphs: 1, Segments: len(c2)},
		},
		append(c1, c2...))
}

func upper(_ context.Context, req Request) (string, error) {
	return strings.ToUpper(req.Text), nil
}

func fastOptions() Options {
	return Options{Genre: "fantasy", TargetLanguage: "ko", Concurrency: 3, MaxRetries: 2, RetryDelay: time.Millisecond}
}

func TestDriver_TransformsEverySegment(t *testing.T) {
	idx := testIndex(t)
	store := newMemStore()

	var seen sync.Map
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		seen.Store(req.Key, req)
		return "Here is the translation:\n" + strings.ToUpper(req.Text), nil
	})

	st, err := NewDriver(tr, store, logging.Discard(), fastOptions()).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: len(idx.Segments), Done: len(idx.Segments)}, st)

	for _, s := range idx.Segments {
		assert.Equal(t, strings.ToUpper(s.Text), store.done[s.Key()], "response is cleaned before storing")
		v, ok := seen.Load(s.Key())
		require.True(t, ok)
		req := v.(Request)
		assert.Equal(t, "fantasy", req.Genre)
		assert.Equal(t, "ko", req.TargetLanguage)
		if s.ChapterID == "c2" {
			assert.Equal(t, "Two", req.ChapterTitle)
		}
	}
}

func TestDriver_SkipsStoredSegments(t *testing.T) {
	idx := testIndex(t)
	store := newMemStore()
	first := idx.Segments[0].Key()
	store.done[first] = "earlier run"

	var calls atomic.Int32
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		assert.NotEqual(t, first, req.Key)
		return upper(ctx, req)
	})

	st, err := NewDriver(tr, store, nil, fastOptions()).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, len(idx.Segments)-1, st.Done)
	assert.Equal(t, int32(len(idx.Segments)-1), calls.Load())
	assert.Equal(t, "earlier run", store.done[first])
}

func TestDriver_RetriesTransientErrors(t *testing.T) {
	idx := testIndex(t)
	store := newMemStore()

	var mu sync.Mutex
	attempts := map[segment.Key]int{}
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		mu.Lock()
		attempts[req.Key]++
		n := attempts[req.Key]
		mu.Unlock()
		if n < 3 {
			return "", errors.New("connection reset")
		}
		if n == 3 && req.Key.PartIndex == 1 {
			return "   ", nil
		}
		return upper(ctx, req)
	})

	opts := fastOptions()
	opts.MaxRetries = 3
	st, err := NewDriver(tr, store, nil, opts).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, len(idx.Segments), st.Done)
	for _, s := range idx.Segments {
		want := 3
		if s.PartIndex == 1 {
			want = 4 // the empty answer counts as a failed attempt
		}
		assert.Equal(t, want, attempts[s.Key()], s.Key().String())
	}
}

func TestDriver_KeepOriginalOnFailure(t *testing.T) {
	idx := testIndex(t)
	store := newMemStore()
	bad := idx.Segments[0].Key()

	var badCalls atomic.Int32
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Key == bad {
			badCalls.Add(1)
			return "", errors.New("model overloaded")
		}
		return upper(ctx, req)
	})

	st, err := NewDriver(tr, store, nil, fastOptions()).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, len(idx.Segments)-1, st.Done)
	assert.Equal(t, int32(3), badCalls.Load(), "one attempt plus two retries")
	assert.Equal(t, "model overloaded", store.failed[bad])
	_, stored := store.done[bad]
	assert.False(t, stored)
}

func TestDriver_UnrecoverableErrorIsNotRetried(t *testing.T) {
	idx := testIndex(t)

	var calls atomic.Int32
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "", retry.Unrecoverable(errors.New("invalid api key"))
	})

	st, err := NewDriver(tr, newMemStore(), nil, fastOptions()).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, len(idx.Segments), st.Failed)
	assert.Equal(t, int32(len(idx.Segments)), calls.Load())
}

func TestDriver_AbortOnFailure(t *testing.T) {
	idx := testIndex(t)
	sentinel := errors.New("quota exhausted")
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		return "", sentinel
	})

	opts := fastOptions()
	opts.AbortOnFailure = true
	opts.Concurrency = 1
	st, err := NewDriver(tr, newMemStore(), nil, opts).Run(context.Background(), idx)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, st.Failed)
	assert.Zero(t, st.Done)
}

func TestDriver_RespectsConcurrency(t *testing.T) {
	s, err := segment.New(5, 10)
	require.NoError(t, err)
	segs := s.Split("c", strings.Fields(strings.Repeat("paragraph ", 20)))
	idx := segment.NewIndex(5, 10, []segment.ChapterEntry{{ID: "c", Paragraphs: 20, Segments: len(segs)}}, segs)

	var inFlight, peak atomic.Int32
	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return upper(ctx, req)
	})

	opts := fastOptions()
	opts.Concurrency = 2
	st, err := NewDriver(tr, newMemStore(), nil, opts).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, len(segs), st.Done)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDriver_Canceled(t *testing.T) {
	idx := testIndex(t)
	ctx, cancel := context.WithCancel(context.Background())

	tr := TransformerFunc(func(ctx context.Context, req Request) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})

	opts := fastOptions()
	opts.Concurrency = 1
	store := newMemStore()
	st, err := NewDriver(tr, store, nil, opts).Run(ctx, idx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, st.Failed, "cancellation is not a segment failure")
	assert.Empty(t, store.failed)
}

func TestDriver_WithProgressStore(t *testing.T) {
	idx := testIndex(t)
	store, err := progress.OpenInMemory(logging.Discard())
	require.NoError(t, err)
	defer store.Close()

	_, err = NewDriver(TransformerFunc(upper), store, nil, fastOptions()).Run(context.Background(), idx)
	require.NoError(t, err)

	got, err := store.Transformed()
	require.NoError(t, err)
	assert.Len(t, got, len(idx.Segments))

	// A second run finds nothing to do.
	st, err := NewDriver(TransformerFunc(upper), store, nil, fastOptions()).Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, len(idx.Segments), st.Skipped)
	assert.Zero(t, st.Done)
}

func TestNewDriver_Defaults(t *testing.T) {
	d := NewDriver(TransformerFunc(upper), newMemStore(), nil, Options{Concurrency: -2, MaxRetries: -1})
	assert.Equal(t, io.Discard, d.log.Out)
	assert.Equal(t, 1, d.opts.Concurrency)
	assert.Zero(t, d.opts.MaxRetries)
}
