package checkpoint_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_New(t *testing.T) {
	state := []byte(`{"messages": []}`)
	cp := checkpoint.New("t1", "run-123", state)

	assert.Equal(t, checkpoint.Version, cp.Version)
	assert.Equal(t, "t1", cp.ThreadID)
	assert.Equal(t, "run-123", cp.RunID)
	assert.Equal(t, json.RawMessage(state), cp.State)
	assert.Empty(t, cp.LastNode)
	assert.False(t, cp.Timestamp.IsZero())
}

func TestCheckpoint_MarshalUnmarshal(t *testing.T) {
	original := checkpoint.New("t1", "run-123", []byte(`{"route":"escalate"}`)).
		WithLastNode("escalate")

	data, err := original.Marshal()
	require.NoError(t, err)

	loaded, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.Version, loaded.Version)
	assert.Equal(t, original.ThreadID, loaded.ThreadID)
	assert.Equal(t, original.RunID, loaded.RunID)
	assert.Equal(t, "escalate", loaded.LastNode)
	assert.JSONEq(t, string(original.State), string(loaded.State))
	assert.WithinDuration(t, original.Timestamp, loaded.Timestamp, time.Second)
}

func TestCheckpoint_UnmarshalInvalidJSON(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestCheckpoint_JSONFormat(t *testing.T) {
	cp := checkpoint.New("t1", "run-1", []byte(`{"value":42}`))

	data, err := cp.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, float64(checkpoint.Version), raw["version"])
	assert.Equal(t, "t1", raw["thread_id"])
	assert.Equal(t, "run-1", raw["run_id"])
	assert.NotEmpty(t, raw["timestamp"])
	_, hasLast := raw["last_node"]
	assert.False(t, hasLast, "last_node omitted when empty")

	stateMap, ok := raw["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), stateMap["value"])
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = store1.Save(ctx, "t1", 0, []byte("persistent"))
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	rec, err := store2.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), rec.Data)
	assert.Equal(t, 1, rec.Sequence)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := checkpoint.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_LargeData(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	largeData := make([]byte, 1024*1024)
	for i := range largeData {
		largeData[i] = byte(i % 256)
	}

	_, err = store.Save(ctx, "t1", 0, largeData)
	require.NoError(t, err)

	rec, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, largeData, rec.Data)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1024*1024), infos[0].Size)
}

func TestBadgerStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "badger")

	store1, err := checkpoint.NewBadgerStore(checkpoint.BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	_, err = store1.Save(ctx, "t1", 0, []byte("first"))
	require.NoError(t, err)
	_, err = store1.Save(ctx, "t1", 1, []byte("second"))
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := checkpoint.NewBadgerStore(checkpoint.BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer store2.Close()

	rec, err := store2.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), rec.Data)
	assert.Equal(t, 2, rec.Sequence)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := checkpoint.NewBadgerStore(checkpoint.BadgerConfig{})
	assert.Error(t, err)
}

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())

	_, err := store.Save(ctx, "t1", 0, []byte("a"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "t1", 1, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, err = store.Save(ctx, "t2", 0, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Delete(ctx, "t1"))
	assert.Equal(t, 1, store.Len())
}
