package vgloss

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/eventbus"
	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/core/state"
	"github.com/hay-kot/vgloss/internal/data/stores"
	"github.com/hay-kot/vgloss/internal/syncer"
)

const busBuffer = 64

// FileLoader fetches the files a session operates on. Tags and folders come
// from the bootstrap payload; files are loaded per use.
type FileLoader func(ctx context.Context, t syncer.Transport, server string) ([]gallery.FileInfo, error)

// Folder loads the files of one folder.
func Folder(path string) FileLoader {
	return func(ctx context.Context, t syncer.Transport, server string) ([]gallery.FileInfo, error) {
		return syncer.LoadFiles(ctx, t, server, path)
	}
}

// Files loads the named files by hash.
func Files(hashes ...string) FileLoader {
	return func(ctx context.Context, t syncer.Transport, server string) ([]gallery.FileInfo, error) {
		files := make([]gallery.FileInfo, 0, len(hashes))
		for _, h := range hashes {
			f, err := syncer.LoadFile(ctx, t, server, h)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
		return files, nil
	}
}

// Session is a sync engine connected to the configured backend for the
// lifetime of one command.
type Session struct {
	Engine *syncer.Engine
	// Restored is the number of journaled actions replayed on connect.
	Restored int

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Connect bootstraps from the backend, starts the event bus and restores any
// journaled actions for the server. load may be nil when no files are needed.
func (a *App) Connect(ctx context.Context, load FileLoader) (*Session, error) {
	server := a.Server()
	ctx = logging.WithServer(ctx, server)

	client, err := a.Client()
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	b, err := syncer.LoadBootstrap(ctx, client, server)
	if err != nil {
		return nil, err
	}
	if load != nil {
		if b.Files, err = load(ctx, client, server); err != nil {
			return nil, err
		}
	}

	bus := eventbus.New(busBuffer)
	eventbus.RegisterDebugLogger(bus, logging.Component("eventbus"))
	busLog := logging.Component("session")
	bus.SubscribeCommitFailed(func(p eventbus.CommitFailedPayload) {
		busLog.Warn().Ctx(ctx).Err(p.Err).Str("batch_id", p.BatchID).Bool("requeued", p.Requeued).Msg("commit failed")
	})
	bus.SubscribeActionRejected(func(p eventbus.ActionRejectedPayload) {
		busLog.Error().Ctx(ctx).Str("kind", string(p.Kind)).Str("slice", string(p.Slice)).Msg("action rejected")
	})

	busCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, gctx := errgroup.WithContext(busCtx)
	group.Go(func() error {
		bus.Start(gctx)
		return nil
	})

	opts := []syncer.Option{syncer.WithBus(bus)}
	if a.Config.Sync.Journal {
		opts = append(opts, syncer.WithJournal(stores.NewQueueJournal(a.KV, server)))
	}

	engine, err := syncer.New(state.New(b), client, a.Config.SyncerConfig(), logging.Component("syncer"), opts...)
	if err != nil {
		cancel()
		_ = group.Wait()
		return nil, err
	}

	s := &Session{Engine: engine, cancel: cancel, group: group}
	if s.Restored, err = engine.Restore(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("restore journal: %w", err)
	}
	return s, nil
}

// Apply performs the actions locally and waits until they are delivered.
// A batch that fails with a retryable error stays queued, and journaled when
// enabled. A batch the backend rejects is dropped and its error returned.
func (s *Session) Apply(ctx context.Context, actions ...action.Action) error {
	for _, a := range actions {
		s.Engine.Do(a)
	}
	return s.Engine.Flush(ctx)
}

// Close stops the engine and the event bus.
func (s *Session) Close() error {
	err := s.Engine.Close()
	s.cancel()
	return errors.Join(err, s.group.Wait())
}
