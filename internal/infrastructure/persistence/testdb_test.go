package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// newTestDB opens a fresh file-backed SQLite database under the test's
// temp directory (modernc.org/sqlite's in-memory mode doesn't reliably
// support the _txlock=immediate DSN param this package's production DSN
// uses, so tests exercise the same on-disk path the sidecar runs with) and
// applies the schema, mirroring the teacher's init_test.go pattern of a
// real database per test rather than a mock.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cutie-test.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_txlock=immediate")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}
