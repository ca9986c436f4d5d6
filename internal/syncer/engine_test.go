package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/eventbus"
	"github.com/hay-kot/vgloss/internal/core/eventbus/testbus"
	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/state"
	"github.com/hay-kot/vgloss/internal/transport"
)

type sentBatch struct {
	url     string
	batchID string
	actions []action.Action
}

// fakeTransport records every batch and answers through respond. n is the
// zero-based index of the call.
type fakeTransport struct {
	respond func(n int) (json.RawMessage, error)

	mu        sync.Mutex
	batches   []sentBatch
	active    int
	maxActive int
	received  chan int
}

func newFakeTransport(respond func(n int) (json.RawMessage, error)) *fakeTransport {
	if respond == nil {
		respond = func(int) (json.RawMessage, error) { return json.RawMessage(`[]`), nil }
	}
	return &fakeTransport{respond: respond, received: make(chan int, 64)}
}

func (f *fakeTransport) Send(ctx context.Context, method, url string, body any, header http.Header) (json.RawMessage, error) {
	envs := body.([]action.Envelope)
	actions, err := action.DeserializeAll(envs)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	n := len(f.batches)
	f.batches = append(f.batches, sentBatch{url: url, batchID: header.Get(transport.HeaderBatchID), actions: actions})
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.mu.Unlock()

	f.received <- n
	resp, err := f.respond(n)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return resp, err
}

func (f *fakeTransport) Batches() []sentBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentBatch{}, f.batches...)
}

func (f *fakeTransport) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *fakeTransport) waitCall(t *testing.T) int {
	t.Helper()
	select {
	case n := <-f.received:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a commit")
		return -1
	}
}

type memJournal struct {
	mu    sync.Mutex
	queue []action.Envelope
	saves int
}

func (j *memJournal) Save(_ context.Context, queue []action.Envelope) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.queue = append([]action.Envelope{}, queue...)
	j.saves++
	return nil
}

func (j *memJournal) Load(context.Context) ([]action.Envelope, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]action.Envelope{}, j.queue...), nil
}

func (j *memJournal) Kinds() []action.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]action.Kind, 0, len(j.queue))
	for _, env := range j.queue {
		out = append(out, env.Kind)
	}
	return out
}

func testStore() *state.Store {
	return state.New(gallery.Bootstrap{
		Tags:    []gallery.Tag{{ID: "1", Name: "animals"}},
		Folders: []string{"2020"},
		Files: []gallery.FileInfo{
			{Hash: "h1", Name: "a.jpg", Tags: []gallery.TagID{}},
			{Hash: "h2", Name: "b.jpg", Tags: []gallery.TagID{"1"}},
		},
	})
}

func testConfig() Config {
	return Config{
		Server:        "http://gallery.test",
		Debounce:      time.Hour, // commits start only through Flush unless a test says otherwise
		CommitTimeout: time.Second,
		RetryInitial:  time.Millisecond,
		RetryMax:      4 * time.Millisecond,
	}
}

// noAutoRetry pushes the retry backoff out of reach so only Flush retries.
func noAutoRetry(cfg Config) Config {
	cfg.RetryInitial = time.Hour
	cfg.RetryMax = 2 * time.Hour
	return cfg
}

func newTestEngine(t *testing.T, store *state.Store, tr Transport, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(store, tr, cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func addTag(hash string, tag gallery.TagID) action.Action {
	return action.AddFileTags(gallery.FileTag{File: hash, Tag: tag})
}

func flush(t *testing.T, e *Engine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

func TestDo_AppliesLocallyBeforeCommit(t *testing.T) {
	tr := newFakeTransport(nil)
	e := newTestEngine(t, testStore(), tr, testConfig())

	e.Do(addTag("h1", "1"))

	files := e.Store().Files()
	assert.Equal(t, []gallery.TagID{"1"}, files[0].Tags)
	assert.Empty(t, tr.Batches())
	assert.Equal(t, Status{Pending: 1}, e.Status())
}

func TestDo_LocalApplyIsAFoldOfActions(t *testing.T) {
	store := testStore()
	e := newTestEngine(t, store, newFakeTransport(nil), testConfig())

	actions := []action.Action{
		addTag("h1", "1"),
		action.NewTagUpdate([]gallery.Tag{{ID: "1", Name: "animals"}, {ID: "tmp-a", Name: "cats"}}),
		addTag("h1", "tmp-a"),
		action.RemoveFileTags(gallery.FileTag{File: "h1", Tag: "1"}),
		addTag("h9", "1"),
	}

	expected := testStore()
	for _, a := range actions {
		e.Do(a)
		require.NoError(t, expected.Commit(a.Apply(expected.Snapshot(a.StateNeeded()...))))
		assert.Equal(t, expected.Bootstrap(), store.Bootstrap())
	}

	assert.Equal(t, []gallery.TagID{"tmp-a"}, store.Files()[0].Tags)
}

func TestCommit_SendsQueueAsOneOrderedBatch(t *testing.T) {
	tr := newFakeTransport(nil)
	e := newTestEngine(t, testStore(), tr, testConfig())

	a1, a2, a3 := addTag("h1", "1"), addTag("h2", "1"), action.RemoveFileTags(gallery.FileTag{File: "h1", Tag: "1"})
	e.Do(a1)
	e.Do(a2)
	e.Do(a3)

	require.NoError(t, flush(t, e))

	batches := tr.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []action.Action{a1, a2, a3}, batches[0].actions)
	assert.Equal(t, "http://gallery.test/api/action", batches[0].url)
	assert.NotEmpty(t, batches[0].batchID)
	assert.Equal(t, Status{}, e.Status())
}

func TestCommit_Debounced(t *testing.T) {
	tr := newFakeTransport(nil)
	cfg := testConfig()
	cfg.Debounce = 50 * time.Millisecond
	e := newTestEngine(t, testStore(), tr, cfg)

	e.Do(addTag("h1", "1"))
	e.Do(addTag("h2", "1"))

	tr.waitCall(t)
	require.NoError(t, flush(t, e))

	batches := tr.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].actions, 2)
}

func TestCommit_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	tr := newFakeTransport(func(n int) (json.RawMessage, error) {
		if n == 0 {
			<-gate
		}
		return json.RawMessage(`[]`), nil
	})
	cfg := testConfig()
	cfg.Debounce = time.Millisecond
	e := newTestEngine(t, testStore(), tr, cfg)

	a1, a2, a3 := addTag("h1", "1"), addTag("h2", "1"), addTag("h1", "1")
	e.Do(a1)
	tr.waitCall(t)

	e.Do(a2)
	e.Do(a3)

	status := e.Status()
	assert.Equal(t, 1, status.InFlight)
	assert.Equal(t, 2, status.Pending)
	assert.True(t, status.Committing)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, tr.Batches(), 1, "no second commit while one is in flight")

	close(gate)
	require.NoError(t, flush(t, e))

	batches := tr.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []action.Action{a1}, batches[0].actions)
	assert.Equal(t, []action.Action{a2, a3}, batches[1].actions)
	assert.NotEqual(t, batches[0].batchID, batches[1].batchID)
	assert.Equal(t, 1, tr.MaxActive())
}

func TestCommit_RetryableFailureRequeuesInOrder(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "server error", err: &transport.Error{StatusCode: http.StatusServiceUnavailable}},
		{name: "rate limited", err: &transport.Error{StatusCode: http.StatusTooManyRequests}},
		{name: "network", err: transport.ErrTransport},
		{name: "timeout", err: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTransport(func(n int) (json.RawMessage, error) {
				if n == 0 {
					return nil, tt.err
				}
				return json.RawMessage(`[]`), nil
			})
			bus := testbus.New(t)
			e := newTestEngine(t, testStore(), tr, noAutoRetry(testConfig()), WithBus(bus.EventBus))

			a1, a2 := addTag("h1", "1"), addTag("h2", "1")
			e.Do(a1)

			err := flush(t, e)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			status := e.Status()
			assert.Equal(t, 1, status.Pending)
			assert.Equal(t, 1, status.Failures)
			assert.ErrorIs(t, status.LastError, tt.err)

			e.Do(a2)
			require.NoError(t, flush(t, e))

			batches := tr.Batches()
			require.Len(t, batches, 2)
			assert.Equal(t, []action.Action{a1}, batches[0].actions)
			assert.Equal(t, []action.Action{a1, a2}, batches[1].actions)
			assert.NoError(t, e.Status().LastError)

			bus.AssertPublished(t, eventbus.EventCommitFailed)
			failed := testbus.Payloads[eventbus.CommitFailedPayload](bus, eventbus.EventCommitFailed)
			require.NotEmpty(t, failed)
			assert.True(t, failed[0].Requeued)
		})
	}
}

func TestCommit_RetriesWithoutFlush(t *testing.T) {
	tr := newFakeTransport(func(n int) (json.RawMessage, error) {
		if n < 2 {
			return nil, &transport.Error{StatusCode: http.StatusBadGateway}
		}
		return json.RawMessage(`[]`), nil
	})
	cfg := testConfig()
	cfg.Debounce = time.Millisecond
	e := newTestEngine(t, testStore(), tr, cfg)

	e.Do(addTag("h1", "1"))
	for range 3 {
		tr.waitCall(t)
	}

	require.Eventually(t, func() bool { return e.Status() == Status{Failures: 2} }, time.Second, 5*time.Millisecond)
}

func TestCommit_RejectedBatchIsDropped(t *testing.T) {
	rejected := &transport.Error{StatusCode: http.StatusBadRequest, Body: "unknown tag"}
	tr := newFakeTransport(func(n int) (json.RawMessage, error) {
		if n == 0 {
			return nil, rejected
		}
		return json.RawMessage(`[]`), nil
	})
	bus := testbus.New(t)
	store := testStore()
	e := newTestEngine(t, store, tr, testConfig(), WithBus(bus.EventBus))

	e.Do(addTag("h1", "1"))
	err := flush(t, e)
	require.ErrorIs(t, err, rejected)

	status := e.Status()
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.InFlight)
	assert.Equal(t, 1, status.Failures)

	// the optimistic change stays; the backend will correct it on the next bootstrap
	assert.Equal(t, []gallery.TagID{"1"}, store.Files()[0].Tags)

	a2 := addTag("h2", "1")
	e.Do(a2)
	require.NoError(t, flush(t, e))

	batches := tr.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []action.Action{a2}, batches[1].actions)

	bus.AssertPublished(t, eventbus.EventCommitFailed)
	failed := testbus.Payloads[eventbus.CommitFailedPayload](bus, eventbus.EventCommitFailed)
	require.Len(t, failed, 1)
	assert.False(t, failed[0].Requeued)
	assert.Equal(t, 1, failed[0].Size)
}

func TestCommit_AppliesFollowUps(t *testing.T) {
	tr := newFakeTransport(func(int) (json.RawMessage, error) {
		return json.RawMessage(`[{"kind":"TagUpdate","payload":{"tags":[{"id":1,"name":"animals"},{"id":2,"name":"cats","parent":1}]}}]`), nil
	})
	bus := testbus.New(t)
	store := testStore()
	e := newTestEngine(t, store, tr, testConfig(), WithBus(bus.EventBus))

	parent := gallery.IntTagID(1)
	e.Do(action.NewTagUpdate([]gallery.Tag{
		{ID: "1", Name: "animals"},
		{ID: "tmp-abc", Name: "cats", Parent: &parent},
	}))
	require.NoError(t, flush(t, e))

	assert.Equal(t, []gallery.Tag{
		{ID: "1", Name: "animals"},
		{ID: "2", Name: "cats", Parent: &parent},
	}, store.Tags())

	bus.AssertPublished(t, eventbus.EventCommitSucceeded)
	succeeded := testbus.Payloads[eventbus.CommitSucceededPayload](bus, eventbus.EventCommitSucceeded)
	require.Len(t, succeeded, 1)
	assert.Equal(t, 1, succeeded[0].FollowUps)
}

func TestCommit_FollowUpSkippedWhenSliceHasQueuedActions(t *testing.T) {
	gate := make(chan struct{})
	tr := newFakeTransport(func(n int) (json.RawMessage, error) {
		if n == 0 {
			<-gate
			return json.RawMessage(`[{"kind":"TagUpdate","payload":{"tags":[{"id":7,"name":"server"}]}}]`), nil
		}
		return json.RawMessage(`[]`), nil
	})
	store := testStore()
	e := newTestEngine(t, store, tr, testConfig())

	e.Do(action.NewTagUpdate([]gallery.Tag{{ID: "tmp-a", Name: "first"}}))
	go func() { _ = e.Flush(context.Background()) }()
	tr.waitCall(t)

	local := []gallery.Tag{{ID: "tmp-b", Name: "second"}}
	e.Do(action.NewTagUpdate(local))
	close(gate)

	require.NoError(t, flush(t, e))
	assert.Equal(t, local, store.Tags())
	assert.Len(t, tr.Batches(), 2)
}

func TestCommit_TagRemapAppliedUnderQueuedActions(t *testing.T) {
	gate := make(chan struct{})
	tr := newFakeTransport(func(n int) (json.RawMessage, error) {
		if n == 0 {
			<-gate
			return json.RawMessage(`[
				{"kind":"TagRemap","payload":{"ids":{"tmp-a":5}}},
				{"kind":"TagUpdate","payload":{"tags":[{"id":5,"name":"first"}]}}
			]`), nil
		}
		return json.RawMessage(`[]`), nil
	})
	store := testStore()
	e := newTestEngine(t, store, tr, testConfig())

	e.Do(action.NewTagUpdate([]gallery.Tag{{ID: "tmp-a", Name: "first"}}))
	e.Do(addTag("h1", "tmp-a"))
	go func() { _ = e.Flush(context.Background()) }()
	tr.waitCall(t)

	// queued on files while the first batch is in flight
	e.Do(addTag("h2", "tmp-a"))
	close(gate)

	require.NoError(t, flush(t, e))
	assert.Equal(t, []gallery.Tag{{ID: "5", Name: "first"}}, store.Tags())

	files := store.Files()
	assert.Equal(t, []gallery.TagID{"5"}, files[0].Tags)
	assert.Equal(t, []gallery.TagID{"1", "5"}, files[1].Tags)
}

func TestCommit_UnknownFollowUpKindIsSkipped(t *testing.T) {
	tr := newFakeTransport(func(int) (json.RawMessage, error) {
		return json.RawMessage(`[{"kind":"FolderRename","payload":{}},{"kind":"TagUpdate","payload":{"tags":[]}}]`), nil
	})
	store := testStore()
	e := newTestEngine(t, store, tr, testConfig())

	e.Do(addTag("h1", "1"))
	require.NoError(t, flush(t, e))

	assert.Empty(t, store.Tags())
}

// sneakyAction writes a slice it never declared.
type sneakyAction struct{}

func (sneakyAction) Kind() action.Kind { return "Sneaky" }

func (sneakyAction) StateNeeded() []state.Slice { return []state.Slice{state.SliceFolders} }

func (sneakyAction) Apply(state.Slices) state.Slices {
	return state.Slices{
		state.SliceFolders: []string{"2021"},
		state.SliceTags:    []gallery.Tag{{ID: "x", Name: "hijacked"}},
	}
}

func TestDo_UndeclaredSliceIsDropped(t *testing.T) {
	bus := testbus.New(t)
	store := testStore()
	e := newTestEngine(t, store, newFakeTransport(nil), testConfig(), WithBus(bus.EventBus))

	e.Do(sneakyAction{})

	assert.Equal(t, []string{"2021"}, store.Folders())
	assert.Equal(t, []gallery.Tag{{ID: "1", Name: "animals"}}, store.Tags())

	bus.AssertPublished(t, eventbus.EventActionRejected)
	rejected := testbus.Payloads[eventbus.ActionRejectedPayload](bus, eventbus.EventActionRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, eventbus.ActionRejectedPayload{Kind: "Sneaky", Slice: state.SliceTags}, rejected[0])

	bus.AssertPublished(t, eventbus.EventStateChanged)
	changed := testbus.Payloads[eventbus.StateChangedPayload](bus, eventbus.EventStateChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, []state.Slice{state.SliceFolders}, changed[0].Slices)
}

func TestFlush_EmptyQueue(t *testing.T) {
	tr := newFakeTransport(nil)
	e := newTestEngine(t, testStore(), tr, testConfig())

	require.NoError(t, flush(t, e))
	assert.Empty(t, tr.Batches())
}

func TestFlush_ContextCanceled(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	tr := newFakeTransport(func(int) (json.RawMessage, error) {
		<-gate
		return json.RawMessage(`[]`), nil
	})
	e := newTestEngine(t, testStore(), tr, testConfig())
	e.Do(addTag("h1", "1"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Flush(ctx), context.DeadlineExceeded)
}

func TestFlush_WaitingFlushReturnsOnClose(t *testing.T) {
	e := newTestEngine(t, testStore(), newFakeTransport(nil), testConfig())

	// an outstanding batch keeps Flush waiting without scheduling a commit
	e.mu.Lock()
	e.inFlight = []action.Action{addTag("h1", "1")}
	e.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- flush(t, e) }()

	require.NoError(t, e.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("flush still waiting after close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	e := newTestEngine(t, testStore(), newFakeTransport(nil), testConfig())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestFlush_AfterClose(t *testing.T) {
	e := newTestEngine(t, testStore(), newFakeTransport(nil), testConfig())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, flush(t, e), ErrClosed)
}

func TestJournal_TracksUnacknowledgedQueue(t *testing.T) {
	tr := newFakeTransport(func(n int) (json.RawMessage, error) {
		if n == 0 {
			return nil, &transport.Error{StatusCode: http.StatusInternalServerError}
		}
		return json.RawMessage(`[]`), nil
	})
	j := &memJournal{}
	e := newTestEngine(t, testStore(), tr, noAutoRetry(testConfig()), WithJournal(j))

	e.Do(addTag("h1", "1"))
	e.Do(action.NewTagUpdate(nil))
	assert.Equal(t, []action.Kind{action.KindFileTagUpdate, action.KindTagUpdate}, j.Kinds())

	require.Error(t, flush(t, e))
	assert.Equal(t, []action.Kind{action.KindFileTagUpdate, action.KindTagUpdate}, j.Kinds())

	require.NoError(t, flush(t, e))
	assert.Empty(t, j.Kinds())
}

func TestRestore_ReappliesAndRequeues(t *testing.T) {
	queued := []action.Action{addTag("h1", "1"), action.RemoveFileTags(gallery.FileTag{File: "h2", Tag: "1"})}
	envs, err := action.SerializeAll(queued)
	require.NoError(t, err)

	j := &memJournal{queue: append(envs, action.Envelope{Kind: "Retired", Payload: json.RawMessage(`{}`)})}
	tr := newFakeTransport(nil)
	store := testStore()
	e := newTestEngine(t, store, tr, testConfig(), WithJournal(j))

	n, err := e.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []gallery.TagID{"1"}, store.Files()[0].Tags)
	assert.Empty(t, store.Files()[1].Tags)
	assert.Equal(t, 2, e.Status().Pending)

	require.NoError(t, flush(t, e))
	batches := tr.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, queued, batches[0].actions)
	assert.Empty(t, j.Kinds())
}

func TestRestore_NoJournal(t *testing.T) {
	e := newTestEngine(t, testStore(), newFakeTransport(nil), testConfig())

	n, err := e.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithBatchIDs(t *testing.T) {
	tr := newFakeTransport(nil)
	ids := []string{"b-1", "b-2"}
	next := 0
	e := newTestEngine(t, testStore(), tr, testConfig(), WithBatchIDs(func() string {
		id := ids[next]
		next++
		return id
	}))

	e.Do(addTag("h1", "1"))
	require.NoError(t, flush(t, e))
	e.Do(addTag("h2", "1"))
	require.NoError(t, flush(t, e))

	batches := tr.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, "b-1", batches[0].batchID)
	assert.Equal(t, "b-2", batches[1].batchID)
}

func TestNew_AppliesDefaults(t *testing.T) {
	e, err := New(testStore(), newFakeTransport(nil), Config{Server: "http://x"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig("http://x"), e.cfg)
}
