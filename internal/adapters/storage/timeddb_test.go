package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimedDB_RecordsEveryStatement(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, t.TempDir()+"/timed.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tdb := NewTimedDB(db, 0)
	assert.Equal(t, DefaultSlowQuery, tdb.threshold)

	var mu sync.Mutex
	ops := map[string]int{}
	tdb.OnQuery(func(op string, d time.Duration) {
		mu.Lock()
		ops[op]++
		mu.Unlock()
	})

	_, err = tdb.ExecContext(ctx, "CREATE TABLE t (id TEXT PRIMARY KEY, val TEXT)")
	require.NoError(t, err)
	_, err = tdb.ExecContext(ctx, "INSERT INTO t (id, val) VALUES (?, ?)", "1", "hello")
	require.NoError(t, err)

	var val string
	require.NoError(t, tdb.QueryRowContext(ctx, "SELECT val FROM t WHERE id = ?", "1").Scan(&val))
	assert.Equal(t, "hello", val)

	rows, err := tdb.QueryContext(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	rows.Close()

	tx, err := tdb.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, map[string]int{"exec": 2, "query_row": 1, "query": 1, "begin_tx": 1}, ops)
	assert.Same(t, db, tdb.RawDB())
}
