package stores

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
)

func newTestSQLiteStore(t *testing.T, policy interfaces.TTLPolicy) *SQLiteStore {
	t.Helper()
	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), policy, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })
	return ss
}

func TestSQLiteStorePutGet(t *testing.T) {
	ss := newTestSQLiteStore(t, interfaces.DefaultTTLPolicy())
	ctx := context.Background()

	payload := json.RawMessage(`{"ip":{"asname":"A","ascountry":"B"}}`)
	require.NoError(t, ss.Put(ctx, "dshield", "192.0.2.1", payload))

	got, ok := ss.Get(ctx, "dshield", "192.0.2.1")
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ss := newTestSQLiteStore(t, interfaces.DefaultTTLPolicy())
	ctx := context.Background()

	require.NoError(t, ss.Put(ctx, "dshield", "k", json.RawMessage(`1`)))
	require.NoError(t, ss.Put(ctx, "dshield", "k", json.RawMessage(`2`)))

	got, ok := ss.Get(ctx, "dshield", "k")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`2`), got)
}

func TestSQLiteStoreExpiryDeletesRow(t *testing.T) {
	ss := newTestSQLiteStore(t, interfaces.TTLPolicy{"urlhaus": time.Hour})
	ctx := context.Background()

	require.NoError(t, ss.Put(ctx, "urlhaus", "h", json.RawMessage(`1`)))

	ss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok := ss.Get(ctx, "urlhaus", "h")
	assert.False(t, ok)

	// The stale row is gone even at the original clock.
	ss.now = time.Now
	_, ok = ss.Get(ctx, "urlhaus", "h")
	assert.False(t, ok)
}
