package store

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	n   int64
	err error
}

func (fakeResult) LastInsertId() (int64, error)   { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestEmbeddedMigrationsCreateDispatchTables(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	body, err := fs.ReadFile(migrationsFS, names[0])
	require.NoError(t, err)
	for _, table := range []string{"drivers", "orders", "dispatch_assignments"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestRequireRow(t *testing.T) {
	assert.NoError(t, requireRow(fakeResult{n: 1}))
	assert.ErrorIs(t, requireRow(fakeResult{n: 0}), ErrNotFound)
	boom := errors.New("boom")
	assert.ErrorIs(t, requireRow(fakeResult{err: boom}), boom)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", nullIfEmpty("x"))
}

func TestOrderColumnsMatchScanTargets(t *testing.T) {
	assert.Len(t, strings.Split(orderCols, ","), 12)
	assert.Len(t, strings.Split(assignmentCols, ","), 14)
}
