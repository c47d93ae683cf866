package manager

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/stores"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
)

// fakeStore is a scriptable tier for composition tests.
type fakeStore struct {
	name    string
	mu      sync.Mutex
	entries map[string]json.RawMessage
	putErr  error
	puts    int
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, entries: make(map[string]json.RawMessage)}
}

func (f *fakeStore) Name() string { return f.name }

func (f *fakeStore) Get(_ context.Context, service, key string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.entries[service+":"+key]
	return payload, ok
}

func (f *fakeStore) Put(_ context.Context, service, key string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[service+":"+key] = payload
	return nil
}

func (f *fakeStore) Delete(_ context.Context, service, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, service+":"+key)
	return nil
}

func (f *fakeStore) Stats() interfaces.Stats { return interfaces.Stats{} }

func TestManagerGetFallsThroughTiers(t *testing.T) {
	l1 := newFakeStore("memory")
	l2 := newFakeStore("redis")
	l3 := newFakeStore("filesystem")
	m := NewManager([]interfaces.Store{l1, l2, l3}, telemetry.NewCollector(), nil)
	ctx := context.Background()

	payload := json.RawMessage(`{"a":1}`)
	require.NoError(t, l3.Put(ctx, "dshield", "k", payload))
	l3.puts = 0

	got, ok := m.Get(ctx, "dshield", "k")
	require.True(t, ok)
	assert.Equal(t, payload, got)

	// The hit back-fills both missed tiers above.
	_, ok = l1.Get(ctx, "dshield", "k")
	assert.True(t, ok)
	_, ok = l2.Get(ctx, "dshield", "k")
	assert.True(t, ok)

	// A second read is served by L1 without touching lower tiers.
	l2.puts, l3.puts = 0, 0
	_, ok = m.Get(ctx, "dshield", "k")
	assert.True(t, ok)
	assert.Zero(t, l2.puts)
	assert.Zero(t, l3.puts)
}

func TestManagerGetMissIncrementsAllTiers(t *testing.T) {
	collector := telemetry.NewCollector()
	m := NewManager([]interfaces.Store{newFakeStore("memory"), newFakeStore("filesystem")}, collector, nil)

	_, ok := m.Get(context.Background(), "spur", "absent")
	assert.False(t, ok)

	snap := collector.GetSnapshot()
	assert.Equal(t, int64(1), snap.Tiers["memory"].Misses)
	assert.Equal(t, int64(1), snap.Tiers["filesystem"].Misses)
}

func TestManagerPutFansOut(t *testing.T) {
	l1 := newFakeStore("memory")
	l2 := newFakeStore("filesystem")
	m := NewManager([]interfaces.Store{l1, l2}, telemetry.NewCollector(), nil)
	ctx := context.Background()

	m.Put(ctx, "urlhaus", "h", json.RawMessage(`{"urls":[]}`))
	_, ok := l1.Get(ctx, "urlhaus", "h")
	assert.True(t, ok)
	_, ok = l2.Get(ctx, "urlhaus", "h")
	assert.True(t, ok)
}

func TestManagerPutTierFailureDoesNotBlockOthers(t *testing.T) {
	l1 := newFakeStore("memory")
	l1.putErr = errors.New("tier down")
	l2 := newFakeStore("filesystem")
	collector := telemetry.NewCollector()
	m := NewManager([]interfaces.Store{l1, l2}, collector, nil)
	ctx := context.Background()

	m.Put(ctx, "dshield", "k", json.RawMessage(`1`))

	_, ok := l2.Get(ctx, "dshield", "k")
	assert.True(t, ok, "healthy tier still written")
	assert.Equal(t, int64(1), collector.GetSnapshot().Tiers["memory"].Errors)
}

func TestManagerSkipsNilTiers(t *testing.T) {
	l1 := newFakeStore("memory")
	m := NewManager([]interfaces.Store{l1, nil, nil}, telemetry.NewCollector(), nil)

	m.Put(context.Background(), "dshield", "k", json.RawMessage(`1`))
	_, ok := m.Get(context.Background(), "dshield", "k")
	assert.True(t, ok)
}

func TestManagerFilesystemAccessor(t *testing.T) {
	fs := stores.NewFilesystemStore(t.TempDir(), interfaces.DefaultTTLPolicy(), nil)
	m := NewManager([]interfaces.Store{newFakeStore("memory"), fs}, telemetry.NewCollector(), nil)
	assert.Same(t, fs, m.Filesystem())

	noFS := NewManager([]interfaces.Store{newFakeStore("memory")}, telemetry.NewCollector(), nil)
	assert.Nil(t, noFS.Filesystem())
}

func TestManagerStatsKeyedByTier(t *testing.T) {
	fs := stores.NewFilesystemStore(t.TempDir(), interfaces.DefaultTTLPolicy(), nil)
	ms := stores.NewMemoryStore(interfaces.DefaultTTLPolicy(), nil)
	m := NewManager([]interfaces.Store{ms, fs}, telemetry.NewCollector(), nil)
	ctx := context.Background()

	m.Put(ctx, "dshield", "k", json.RawMessage(`1`))
	_, _ = m.Get(ctx, "dshield", "k")

	stats := m.Stats()
	require.Contains(t, stats, "memory")
	require.Contains(t, stats, "filesystem")
	assert.Equal(t, int64(1), stats["memory"].Hits)
	assert.Equal(t, int64(1), stats["filesystem"].Stores)
}
