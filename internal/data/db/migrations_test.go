package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(t.TempDir(), DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func openRawConn(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), FileName)
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMigrateUp_FreshDB(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	applied, err := appliedVersions(ctx, database.Conn())
	require.NoError(t, err)

	migrations, err := loadMigrations()
	require.NoError(t, err)

	require.Len(t, applied, len(migrations))
	for _, m := range migrations {
		assert.True(t, applied[m.Version], "version %d should be applied", m.Version)
	}

	_, err = database.Conn().ExecContext(ctx, "SELECT 1 FROM kv_store LIMIT 0")
	require.NoError(t, err, "kv_store table should exist")
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database := openTestDB(t)

	err := migrateUp(context.Background(), database.Conn())
	assert.NoError(t, err, "second migrateUp should be idempotent")
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	require.NoError(t, first.Queries().KVSet(ctx, KVSetParams{Key: "k", Value: []byte(`1`), CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, first.Close())

	second, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	row, err := second.Queries().KVGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`1`), row.Value)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	err := database.WithTx(ctx, func(q *Queries) error {
		if err := q.KVSet(ctx, KVSetParams{Key: "k", Value: []byte(`1`)}); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	_, err = database.Queries().KVGet(ctx, "k")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMigrateDown(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	conn := database.Conn()

	err := MigrateDown(ctx, conn, 1)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, "SELECT 1 FROM kv_store LIMIT 0")
	require.Error(t, err, "kv_store should not exist after down migration")

	require.NoError(t, migrateUp(ctx, conn))
	_, err = conn.ExecContext(ctx, "SELECT 1 FROM kv_store LIMIT 0")
	require.NoError(t, err)
}

func TestMigrateDown_InvalidN(t *testing.T) {
	conn := openRawConn(t)
	ctx := context.Background()

	err := MigrateDown(ctx, conn, 0)
	require.Error(t, err, "n=0 should fail")

	err = MigrateDown(ctx, conn, -1)
	require.Error(t, err, "n=-1 should fail")
}

func TestMigrateDown_TooMany(t *testing.T) {
	database := openTestDB(t)

	migrations, err := loadMigrations()
	require.NoError(t, err)

	err = MigrateDown(context.Background(), database.Conn(), len(migrations)+1)
	assert.Error(t, err, "requesting more down migrations than applied should fail")
}

func TestLoadMigrations_Valid(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version,
			"migrations should be in ascending version order")
	}

	for _, m := range migrations {
		assert.NotEmpty(t, m.UpSQL, "migration %d up SQL should not be empty", m.Version)
		assert.NotEmpty(t, m.DownSQL, "migration %d down SQL should not be empty", m.Version)
		assert.NotEmpty(t, m.Name, "migration %d name should not be empty", m.Version)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename      string
		wantVersion   int
		wantName      string
		wantDirection string
		wantErr       bool
	}{
		{"0001_kv_store.up.sql", 1, "kv_store", "up", false},
		{"0001_kv_store.down.sql", 1, "kv_store", "down", false},
		{"0100_big_version.down.sql", 100, "big_version", "down", false},
		{"bad.sql", 0, "", "", true},
		{"0001_initial.sql", 0, "", "", true},
		{"0000_zero.up.sql", 0, "", "", true},
		{"-1_negative.up.sql", 0, "", "", true},
		{"abc_notnumber.up.sql", 0, "", "", true},
		{"0001_.up.sql", 0, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, direction, err := parseFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantDirection, direction)
		})
	}
}
