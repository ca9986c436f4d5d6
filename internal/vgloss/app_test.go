package vgloss

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/config"
	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/data/db"
	"github.com/hay-kot/vgloss/internal/data/stores"
	"github.com/hay-kot/vgloss/internal/server"
)

func newTestApp(t *testing.T, journal bool) (*App, *server.Gallery) {
	t.Helper()

	g, err := server.NewGallery(server.Seed{
		Tags:    []gallery.Tag{{ID: "1", Name: "animals"}},
		Folders: []string{"2020"},
		Files: []server.SeedFile{
			{FileInfo: gallery.FileInfo{Hash: "h1", Name: "a.jpg"}, Folder: "2020"},
			{FileInfo: gallery.FileInfo{Hash: "h2", Name: "b.jpg"}, Folder: "2020"},
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(server.New(g, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Server = srv.URL
	cfg.DataDir = t.TempDir()
	cfg.Sync.Debounce = time.Millisecond
	cfg.Sync.Journal = journal

	database, err := OpenDatabase(cfg.DataDir, db.DefaultOpenOptions(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return NewApp(&cfg, database), g
}

func TestConnect_LoadsFiles(t *testing.T) {
	tests := []struct {
		name   string
		load   FileLoader
		hashes []string
	}{
		{name: "no files", load: nil},
		{name: "folder", load: Folder("2020"), hashes: []string{"h1", "h2"}},
		{name: "by hash", load: Files("h2"), hashes: []string{"h2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t, true)

			s, err := app.Connect(context.Background(), tt.load)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			var hashes []string
			for _, f := range s.Engine.Store().Files() {
				hashes = append(hashes, f.Hash)
			}
			assert.Equal(t, tt.hashes, hashes)
			assert.Equal(t, []gallery.Tag{{ID: "1", Name: "animals"}}, s.Engine.Store().Tags())
		})
	}
}

func TestConnect_UnknownFile(t *testing.T) {
	app, _ := newTestApp(t, true)

	_, err := app.Connect(context.Background(), Files("nope"))
	assert.Error(t, err)
}

func TestSession_ApplyDelivers(t *testing.T) {
	app, backend := newTestApp(t, true)
	ctx := context.Background()

	s, err := app.Connect(ctx, Files("h1"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Apply(ctx, action.AddFileTags(gallery.FileTag{File: "h1", Tag: "1"})))

	h1, _ := backend.File("h1")
	assert.Equal(t, []gallery.TagID{"1"}, h1.Tags)
}

func TestConnect_RestoresJournal(t *testing.T) {
	app, backend := newTestApp(t, true)
	ctx := context.Background()

	env, err := action.Serialize(action.AddFileTags(gallery.FileTag{File: "h2", Tag: "1"}))
	require.NoError(t, err)
	require.NoError(t, stores.NewQueueJournal(app.KV, app.Server()).Save(ctx, []action.Envelope{env}))

	s, err := app.Connect(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, 1, s.Restored)
	require.NoError(t, s.Engine.Flush(ctx))

	h2, _ := backend.File("h2")
	assert.Equal(t, []gallery.TagID{"1"}, h2.Tags)
}

func TestConnect_JournalDisabled(t *testing.T) {
	app, _ := newTestApp(t, false)
	ctx := context.Background()

	env, err := action.Serialize(action.AddFileTags(gallery.FileTag{File: "h2", Tag: "1"}))
	require.NoError(t, err)
	require.NoError(t, stores.NewQueueJournal(app.KV, app.Server()).Save(ctx, []action.Envelope{env}))

	s, err := app.Connect(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Zero(t, s.Restored)
}

func TestOpenDatabase_RecoversFromCorruption(t *testing.T) {
	dataDir := t.TempDir()
	garbage := bytes.Repeat([]byte("not a sqlite database "), 200)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, db.FileName), garbage, 0o644))

	opts := db.DefaultOpenOptions()
	opts.PingRetries = 1
	database, err := OpenDatabase(dataDir, opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	backups, err := filepath.Glob(filepath.Join(dataDir, db.FileName+".corrupt.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}
