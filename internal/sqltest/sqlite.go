// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register the SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// deterministicTestID generates a deterministic identifier based on the test
// name. This ensures that Golang test caching works properly by avoiding
// random generations for the database name. We need to use this hash to avoid
// long database names that can be cropped by some database systems.
func deterministicTestID(t testing.TB) string {
	t.Helper()
	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))

	// This should never fail, but we handle it just in case.
	require.NoError(t, err)

	hashed := fmt.Sprintf("%08x", h.Sum32())
	t.Logf("db name hash: %s", hashed)
	return hashed
}

// NewSQLiteDSN returns the data source name of a fresh SQLite database file
// inside a per-test temporary directory. The file is named deterministically
// and removed together with the directory when the test ends.
func NewSQLiteDSN(t testing.TB) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(),
		"zecwallettest_"+deterministicTestID(t)+".sqlite")

	// Use a file-backed database with read/write/create mode and a busy
	// timeout so connections from the same pool wait on each other rather
	// than failing.
	return "file:" + dbPath + "?mode=rwc&_pragma=busy_timeout(5000)"
}

// NewSQLiteDB creates an isolated fresh SQLite database for each test and
// returns an open connection to it.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", NewSQLiteDSN(t))
	require.NoError(t, err, "failed to open SQLite database")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		require.NoError(t, err, "failed to ping SQLite database")
	}

	t.Cleanup(func() {
		err := db.Close()
		assert.NoError(t, err, "failed to close SQLite database")
	})

	return db
}
