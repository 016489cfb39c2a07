package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	db, err := New(Config{Path: path, Name: "history"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.Equal(t, "history", db.Name())

	require.NoError(t, db.Migrate())
	// Schema is idempotent
	require.NoError(t, db.Migrate())

	var count int
	err = db.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('daily_prices', 'symbols')",
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "scratch.db"), Name: "scratch", Profile: ProfileCache})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "tx.db"), Name: "tx"})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn().Exec("CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO items (id) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO items (id) VALUES (2)"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count, "failed transactions must roll back")

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}
