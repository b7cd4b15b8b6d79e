package relational_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/relational"
)

func openTestStore(t *testing.T) *relational.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.db")
	store, err := relational.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReplaceAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cols := []relational.Column{
		{Name: "vin", Type: relational.TypeText},
		{Name: "make", Type: relational.TypeText},
		{Name: "year", Type: relational.TypeInteger},
	}
	rows := [][]any{
		{"ABC", "Honda", 2020},
		{"DEF", "Ford", 2021},
	}
	require.NoError(t, store.ReplaceTable(ctx, "cars", cols, rows))

	schema, err := store.TableSchema(ctx, "cars")
	require.NoError(t, err)
	assert.Equal(t, int64(2), schema.RowCount)
	assert.Len(t, schema.Columns, 3)

	result, err := store.Execute(ctx, "SELECT * FROM cars")
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

func TestExecuteRejectsUnsafeQuery(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Execute(context.Background(), "DROP TABLE cars")
	assert.Error(t, err)
}

func TestDeleteTableNotFound(t *testing.T) {
	store := openTestStore(t)
	err := store.DeleteTable(context.Background(), "missing")
	assert.Error(t, err)
}

func TestReplaceTableIsIdempotentOverwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	cols := []relational.Column{{Name: "id", Type: relational.TypeInteger}}

	require.NoError(t, store.ReplaceTable(ctx, "t", cols, [][]any{{1}, {2}, {3}}))
	require.NoError(t, store.ReplaceTable(ctx, "t", cols, [][]any{{9}}))

	schema, err := store.TableSchema(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), schema.RowCount)
}
