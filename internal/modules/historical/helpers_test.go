package historical

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database with the history schema
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			adjusted_close REAL NOT NULL,
			volume INTEGER,
			PRIMARY KEY (symbol, date)
		);

		CREATE TABLE IF NOT EXISTS symbols (
			symbol TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func int64Ptr(v int64) *int64 {
	return &v
}
