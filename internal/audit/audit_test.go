package audit_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/audit"
)

func openTestStore(t *testing.T) *audit.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := audit.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLogAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Log(ctx, audit.Event{
		Type: audit.EventDataUpload, UserID: "alice", IPAddress: "10.0.0.1",
		Resource: "cars", Detail: map[string]any{"rows": 42},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventDataUpload, events[0].Type)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, float64(42), events[0].Detail["rows"])
}

func TestQueryFilterByType(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, _ = store.Log(ctx, audit.Event{Type: audit.EventQuerySQL, UserID: "bob"})
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload, UserID: "bob"})

	events, err := store.Query(ctx, audit.Filter{Type: audit.EventQuerySQL})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventQuerySQL, events[0].Type)
}

func TestCountsByType(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload})
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload})
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventQuerySQL})

	counts, err := store.CountsByType(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, counts[audit.EventDataUpload])
	assert.Equal(t, 1, counts[audit.EventQuerySQL])
}

func TestPurgeRemovesOldEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload})

	deleted, err := store.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExportAndVerifyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload, UserID: "alice"})
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventQuerySQL, UserID: "bob"})

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "export.csv")
	secret := []byte("test-secret-key")

	result, err := store.Export(ctx, csvPath, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), secret)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventCount)
	assert.FileExists(t, result.SignaturePath)
	assert.FileExists(t, result.MetadataPath)

	verify, err := audit.Verify(csvPath, secret)
	require.NoError(t, err)
	assert.True(t, verify.HashValid)
	assert.True(t, verify.SignatureValid)
	assert.False(t, verify.Tampered)
}

func TestVerifyDetectsTampering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload, UserID: "alice"})

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "export.csv")
	secret := []byte("test-secret-key")

	_, err := store.Export(ctx, csvPath, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), secret)
	require.NoError(t, err)

	// Append a line after export, simulating post-hoc tampering.
	f, err := os.OpenFile(csvPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("999,fake-id,DATA_UPLOAD,mallory,0.0.0.0,cars,{},success,2026-01-01T00:00:00Z\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	verify, err := audit.Verify(csvPath, secret)
	require.NoError(t, err)
	assert.False(t, verify.HashValid)
	assert.False(t, verify.SignatureValid)
	assert.True(t, verify.Tampered)
}

func TestVerifyDetectsWrongSecretKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, _ = store.Log(ctx, audit.Event{Type: audit.EventDataUpload})

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "export.csv")
	_, err := store.Export(ctx, csvPath, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), []byte("correct-key"))
	require.NoError(t, err)

	verify, err := audit.Verify(csvPath, []byte("wrong-key"))
	require.NoError(t, err)
	assert.True(t, verify.HashValid)
	assert.False(t, verify.SignatureValid)
	assert.True(t, verify.Tampered)
}
