// Package syncer keeps the client-side gallery state synchronized with the
// backend. Actions are applied to the local store immediately and queued;
// the queue is committed to the backend in debounced, single-flight batches
// that preserve the order actions were issued in.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/eventbus"
	"github.com/hay-kot/vgloss/internal/core/state"
	"github.com/hay-kot/vgloss/internal/transport"
)

// ActionPath is the backend endpoint that accepts action batches.
const ActionPath = "/api/action"

// ErrClosed is returned by Flush once the engine has been closed.
var ErrClosed = errors.New("sync engine closed")

// Transport performs one HTTP request with a JSON body and returns the JSON
// response. Non-2xx answers and network failures are errors.
type Transport interface {
	Send(ctx context.Context, method, url string, body any, header http.Header) (json.RawMessage, error)
}

// Journal durably records the actions the backend has not acknowledged yet.
type Journal interface {
	Save(ctx context.Context, queue []action.Envelope) error
	Load(ctx context.Context) ([]action.Envelope, error)
}

// Config tunes the commit protocol.
type Config struct {
	// Server is the backend base URL.
	Server string
	// Debounce is the quiet period after the last Do before a commit starts.
	Debounce time.Duration
	// CommitTimeout bounds one commit request.
	CommitTimeout time.Duration
	// RetryInitial and RetryMax bound the backoff between retries of a
	// batch that failed with a retryable error.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// DefaultConfig returns the protocol defaults for server.
func DefaultConfig(server string) Config {
	return Config{
		Server:        server,
		Debounce:      3 * time.Millisecond,
		CommitTimeout: 10 * time.Second,
		RetryInitial:  100 * time.Millisecond,
		RetryMax:      30 * time.Second,
	}
}

// Status is an observable snapshot of the queue.
type Status struct {
	Pending    int
	InFlight   int
	Committing bool
	LastError  error
	Failures   int
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithBus publishes engine events on bus.
func WithBus(bus *eventbus.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithJournal persists the unacknowledged queue to j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithBatchIDs overrides the batch id generator.
func WithBatchIDs(fn func() string) Option {
	return func(e *Engine) { e.newBatchID = fn }
}

// Engine is the single writer of a state.Store and the owner of the action
// queue. All methods are safe for concurrent use.
type Engine struct {
	store      *state.Store
	transport  Transport
	bus        *eventbus.EventBus
	journal    Journal
	logger     zerolog.Logger
	cfg        Config
	actionURL  string
	newBatchID func() string

	mu           sync.Mutex
	pending      []action.Action
	inFlight     []action.Action
	timer        *time.Timer
	retryWait    time.Duration
	backoffUntil time.Time
	lastErr      error
	failures     int
	closed       bool
	settled      chan struct{} // closed and replaced after every commit attempt
	wg           sync.WaitGroup

	journalMu    sync.Mutex
	journalSeq   uint64
	journalSaved uint64
}

// New creates an engine writing to store and committing through transport.
func New(store *state.Store, transport Transport, cfg Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	defaults := DefaultConfig(cfg.Server)
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaults.CommitTimeout
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaults.RetryInitial
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = max(defaults.RetryMax, cfg.RetryInitial)
	}

	actionURL, err := url.JoinPath(cfg.Server, ActionPath)
	if err != nil {
		return nil, fmt.Errorf("build action url: %w", err)
	}

	e := &Engine{
		store:      store,
		transport:  transport,
		logger:     logger,
		cfg:        cfg,
		actionURL:  actionURL,
		newBatchID: uuid.NewString,
		settled:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Store returns the state store the engine writes to.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Do applies a to the store immediately and queues it for the backend. It
// never fails: contract violations are logged and reported on the bus, and
// delivery errors surface through Status, the bus and Flush.
func (e *Engine) Do(a action.Action) {
	e.mu.Lock()
	changed := e.applyLocked(a)
	e.pending = append(e.pending, a)
	if len(e.inFlight) == 0 {
		e.scheduleLocked(e.cfg.Debounce)
	}
	seq, queue := e.queueLocked()
	e.mu.Unlock()

	e.publishChanged(changed)
	e.persist(seq, queue)
}

// applyLocked runs a against a private snapshot and writes back the slices it
// is allowed to write. It returns the names of the slices written.
func (e *Engine) applyLocked(a action.Action) []state.Slice {
	needed := a.StateNeeded()
	result := a.Apply(e.store.Snapshot(needed...))

	permitted := make(state.Slices, len(result))
	for name, v := range result {
		if !state.Contains(needed, name) {
			err := &ContractViolationError{Kind: a.Kind(), Slice: name}
			e.logger.Error().Err(err).Msg("state must be included in state needed to be saved")
			e.bus.PublishActionRejected(eventbus.ActionRejectedPayload{Kind: a.Kind(), Slice: name})
			continue
		}
		if err := state.Check(name, v); err != nil {
			e.logger.Error().Err(err).Str("kind", string(a.Kind())).Msg("action returned invalid slice")
			continue
		}
		permitted[name] = v
	}

	if err := e.store.Commit(permitted); err != nil {
		// Check above makes this unreachable; keep the store untouched if not.
		e.logger.Error().Err(err).Str("kind", string(a.Kind())).Msg("commit action result")
		return nil
	}
	return permitted.Names()
}

// scheduleLocked arms the single commit timer. A pending retry backoff is
// never shortened by new local actions.
func (e *Engine) scheduleLocked(delay time.Duration) {
	if e.closed {
		return
	}
	if wait := time.Until(e.backoffUntil); wait > delay {
		delay = wait
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, e.commit)
}

// commit sends the whole pending queue as one batch. It is a no-op when the
// queue is empty or another batch is still in flight.
func (e *Engine) commit() {
	e.mu.Lock()
	if e.closed || len(e.pending) == 0 || len(e.inFlight) > 0 {
		e.mu.Unlock()
		return
	}
	e.inFlight = e.pending
	e.pending = nil
	batch := e.inFlight
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	batchID := e.newBatchID()
	log := e.logger.With().Str("batch_id", batchID).Int("size", len(batch)).Logger()

	envs, err := action.SerializeAll(batch)
	if err != nil {
		e.fail(log, batch, batchID, fmt.Errorf("serialize batch: %w", err), false)
		return
	}

	e.bus.PublishCommitStarted(eventbus.CommitStartedPayload{BatchID: batchID, Size: len(batch)})
	log.Debug().Msg("committing actions")

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommitTimeout)
	header := http.Header{}
	header.Set(transport.HeaderBatchID, batchID)
	resp, err := e.transport.Send(ctx, http.MethodPost, e.actionURL, envs, header)
	cancel()
	if err != nil {
		e.fail(log, batch, batchID, err, isRetryable(err))
		return
	}

	followUps := e.decodeFollowUps(log, resp)

	e.mu.Lock()
	e.inFlight = nil
	e.retryWait = 0
	e.backoffUntil = time.Time{}
	e.lastErr = nil
	changed := e.applyFollowUpsLocked(log, followUps)
	if len(e.pending) > 0 {
		e.scheduleLocked(0)
	}
	seq, queue := e.queueLocked()
	e.mu.Unlock()

	log.Debug().Int("follow_ups", len(followUps)).Msg("commit succeeded")
	e.bus.PublishCommitSucceeded(eventbus.CommitSucceededPayload{
		BatchID:   batchID,
		Size:      len(batch),
		FollowUps: len(followUps),
	})
	e.publishChanged(changed)
	e.persist(seq, queue)
	e.settle()
}

// fail records a failed commit. Retryable failures put the batch back in
// front of the pending queue and schedule a retry with exponential backoff;
// anything else drops the batch.
func (e *Engine) fail(log zerolog.Logger, batch []action.Action, batchID string, err error, retry bool) {
	e.mu.Lock()
	e.inFlight = nil
	e.lastErr = err
	e.failures++

	if retry {
		e.pending = slices.Concat(batch, e.pending)
		if e.retryWait == 0 {
			e.retryWait = e.cfg.RetryInitial
		} else {
			e.retryWait = min(e.retryWait*2, e.cfg.RetryMax)
		}
		e.backoffUntil = time.Now().Add(e.retryWait)
		e.scheduleLocked(e.retryWait)
		log.Warn().Err(err).Dur("retry_in", e.retryWait).Msg("commit failed, batch requeued")
	} else {
		if len(e.pending) > 0 {
			e.scheduleLocked(e.cfg.Debounce)
		}
		log.Error().Err(err).Msg("commit rejected, batch dropped")
	}

	seq, queue := e.queueLocked()
	e.mu.Unlock()

	e.bus.PublishCommitFailed(eventbus.CommitFailedPayload{
		BatchID:  batchID,
		Size:     len(batch),
		Err:      err,
		Requeued: retry,
	})
	e.persist(seq, queue)
	e.settle()
}

func (e *Engine) decodeFollowUps(log zerolog.Logger, resp json.RawMessage) []action.Action {
	var envs []action.Envelope
	if err := json.Unmarshal(resp, &envs); err != nil {
		log.Warn().Err(err).Msg("ignoring undecodable commit response")
		return nil
	}

	out := make([]action.Action, 0, len(envs))
	for _, env := range envs {
		a, err := action.Deserialize(env)
		if err != nil {
			log.Error().Err(err).Msg("skipping follow-up action")
			continue
		}
		out = append(out, a)
	}
	return out
}

// applyFollowUpsLocked applies actions returned by the backend. A follow-up
// is skipped when a queued local action needs one of its slices, since the
// local state already reflects that action and the backend will answer it
// with its own follow-ups. Renames are always applied.
func (e *Engine) applyFollowUpsLocked(log zerolog.Logger, followUps []action.Action) []state.Slice {
	var changed []state.Slice
	for _, a := range followUps {
		if !renamesOnly(a) && e.contendedLocked(a.StateNeeded()) {
			log.Debug().Str("kind", string(a.Kind())).Msg("follow-up skipped, slice has queued actions")
			continue
		}
		for _, name := range e.applyLocked(a) {
			if !slices.Contains(changed, name) {
				changed = append(changed, name)
			}
		}
	}
	return changed
}

func renamesOnly(a action.Action) bool {
	r, ok := a.(action.Renamer)
	return ok && r.RenamesOnly()
}

func (e *Engine) contendedLocked(names []state.Slice) bool {
	for _, a := range e.pending {
		for _, name := range a.StateNeeded() {
			if slices.Contains(names, name) {
				return true
			}
		}
	}
	return false
}

// settle wakes every Flush waiting on the current commit attempt. It runs
// after the journal write so a returning Flush observes a persisted queue.
func (e *Engine) settle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.settled)
	e.settled = make(chan struct{})
}

// Flush commits everything queued and waits until the backend acknowledged
// it. It returns the commit error if an attempt fails while waiting.
func (e *Engine) Flush(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		if len(e.pending) == 0 && len(e.inFlight) == 0 {
			e.mu.Unlock()
			return nil
		}
		failures := e.failures
		settled := e.settled
		if len(e.inFlight) == 0 {
			// an explicit flush retries right away
			e.backoffUntil = time.Time{}
			e.scheduleLocked(0)
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-settled:
		}

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		failed, err := e.failures != failures, e.lastErr
		e.mu.Unlock()
		if failed {
			return fmt.Errorf("flush: %w", err)
		}
	}
}

// Status returns a snapshot of the queue.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Pending:    len(e.pending),
		InFlight:   len(e.inFlight),
		Committing: len(e.inFlight) > 0,
		LastError:  e.lastErr,
		Failures:   e.failures,
	}
}

// Restore re-applies and re-queues the actions recorded in the journal, in
// their original order. Entries of unknown kind are logged and skipped. It
// returns the number of restored actions.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	envs, err := e.journal.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	n := 0
	for _, env := range envs {
		a, err := action.Deserialize(env)
		if err != nil {
			e.logger.Error().Err(err).Msg("skipping journaled action")
			continue
		}
		e.Do(a)
		n++
	}
	if n > 0 {
		e.logger.Info().Int("actions", n).Msg("restored journaled actions")
	}
	return n, nil
}

// Close stops scheduling commits and waits for an outstanding one. Queued
// actions stay in the journal. Flush calls still waiting return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.settle()
	return nil
}

// queueLocked returns the unacknowledged queue in send order together with a
// sequence number ordering journal writes.
func (e *Engine) queueLocked() (uint64, []action.Action) {
	if e.journal == nil {
		return 0, nil
	}
	e.journalSeq++
	return e.journalSeq, slices.Concat(e.inFlight, e.pending)
}

// persist writes queue to the journal unless a newer queue was already saved.
func (e *Engine) persist(seq uint64, queue []action.Action) {
	if e.journal == nil {
		return
	}

	e.journalMu.Lock()
	defer e.journalMu.Unlock()
	if seq <= e.journalSaved {
		return
	}

	envs, err := action.SerializeAll(queue)
	if err != nil {
		e.logger.Error().Err(err).Msg("serialize journal")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommitTimeout)
	defer cancel()
	if err := e.journal.Save(ctx, envs); err != nil {
		e.logger.Error().Err(err).Msg("save journal")
		return
	}
	e.journalSaved = seq
}

func (e *Engine) publishChanged(names []state.Slice) {
	if len(names) == 0 {
		return
	}
	e.bus.PublishStateChanged(eventbus.StateChangedPayload{Slices: names})
}

// isRetryable treats errors that do not say otherwise (network failures,
// timeouts) as retryable.
func isRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
