package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/storage"
	"github.com/iudanet/linkmesh/internal/storage/boltdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *boltdb.Storage {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openTestMap(t *testing.T, nodeID string, opts ...Option) *Map {
	t.Helper()

	m, err := Open(context.Background(), openTestStore(t), nodeID, testLogger(), opts...)
	require.NoError(t, err)
	return m
}

func remoteEntry(id, nodeID string, ts int64, dest string) *models.ReplicaEntry {
	return &models.ReplicaEntry{
		Redirect: models.Redirect{
			ID:             id,
			ShortCode:      fmt.Sprintf("%06x", ts),
			DestinationURL: dest,
			Description:    "remote",
			CreatedAt:      time.Unix(1700000000+ts, 0).UTC(),
		},
		Meta: models.WriteMeta{NodeID: nodeID, Timestamp: ts},
	}
}

// collect подписка, складывающая изменения в канал
func collect(m *Map) (*Subscription, <-chan Change) {
	ch := make(chan Change, 1024)
	sub := m.Subscribe(func(c Change) { ch <- c })
	return sub, ch
}

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestOpen_RequiresNodeID(t *testing.T) {
	_, err := Open(context.Background(), openTestStore(t), "", testLogger())
	assert.Error(t, err)
}

func TestMap_Create(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := openTestMap(t, "node-a", WithClock(func() time.Time { return fixed }))

	entry, err := m.Create(ctx, NewRecord{
		ShortCode:      "abc123",
		DestinationURL: "https://example.com/page",
		Description:    "example",
	})
	require.NoError(t, err)

	assert.Equal(t, "node-a:1", entry.ID)
	assert.Equal(t, "node-a", entry.Meta.NodeID)
	assert.Equal(t, int64(1), entry.Meta.Timestamp)
	assert.Equal(t, fixed, entry.CreatedAt)

	got, err := m.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, entry.Equal(got), "created entry must be durable before Create returns")

	second, err := m.Create(ctx, NewRecord{ShortCode: "def456", DestinationURL: "https://example.com/2"})
	require.NoError(t, err)
	assert.Equal(t, "node-a:2", second.ID)
	assert.Greater(t, second.Meta.Timestamp, entry.Meta.Timestamp)
}

func TestMap_Create_InvalidRecord(t *testing.T) {
	m := openTestMap(t, "node-a")

	_, err := m.Create(context.Background(), NewRecord{ShortCode: "abc123"})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

// Узел с потерянными метаданными снова выдает уже занятые номера
func TestMap_Create_DuplicateID(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-a")

	_, err := m.Merge(ctx, remoteEntry("node-a:1", "node-a", 1, "https://example.com"), "node-b")
	require.NoError(t, err)

	_, err = m.Create(ctx, NewRecord{ShortCode: "abc123", DestinationURL: "https://example.org"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	got, err := m.Get(ctx, "node-a:1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.DestinationURL, "existing id must never be silently overwritten")

	// Следующий номер свободен
	next, err := m.Create(ctx, NewRecord{ShortCode: "abc124", DestinationURL: "https://example.org"})
	require.NoError(t, err)
	assert.Equal(t, "node-a:2", next.ID)
}

func TestMap_Merge_MalformedID(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-a")

	for _, id := range []string{"no-separator", "node-b:", ":7", "node-b:x"} {
		result, err := m.Merge(ctx, remoteEntry(id, "node-b", 1, "https://example.com"), "node-b")
		assert.ErrorIs(t, err, ErrInvalidEntry, id)
		assert.Equal(t, MergeRejected, result, id)
	}

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMap_Merge_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-b")
	_, changes := collect(m)

	entry := remoteEntry("node-a:1", "node-a", 5, "https://example.com")

	result, err := m.Merge(ctx, entry, "node-a")
	require.NoError(t, err)
	assert.Equal(t, MergeInserted, result)

	before, err := m.GetAll(ctx)
	require.NoError(t, err)

	result, err = m.Merge(ctx, entry, "node-a")
	require.NoError(t, err)
	assert.Equal(t, MergeUnchanged, result)

	after, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	c := receive(t, changes)
	assert.Equal(t, ChangeInserted, c.Kind)
	assert.Equal(t, "node-a", c.Source)

	select {
	case extra := <-changes:
		t.Fatalf("unexpected change after idempotent merge: %v", extra.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMap_Merge_Rejected(t *testing.T) {
	m := openTestMap(t, "node-b")

	entry := remoteEntry("node-a:1", "node-a", 1, "")
	result, err := m.Merge(context.Background(), entry, "node-a")

	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.Equal(t, MergeRejected, result)
}

func TestMap_Merge_AdvancesClock(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-b")

	_, err := m.Merge(ctx, remoteEntry("node-a:1", "node-a", 100, "https://example.com"), "node-a")
	require.NoError(t, err)

	entry, err := m.Create(ctx, NewRecord{ShortCode: "zzz999", DestinationURL: "https://example.org"})
	require.NoError(t, err)
	assert.Greater(t, entry.Meta.Timestamp, int64(100))
}

func TestMap_Merge_ConflictDeterministic(t *testing.T) {
	ctx := context.Background()

	winner := remoteEntry("dup:1", "node-a", 3, "https://winner.example")
	loser := remoteEntry("dup:1", "node-b", 1, "https://loser.example")

	// Узел 1 видит сначала победителя, узел 2 - проигравшего
	m1 := openTestMap(t, "node-x")
	m2 := openTestMap(t, "node-y")
	_, changes2 := collect(m2)

	r, err := m1.Merge(ctx, winner, "node-a")
	require.NoError(t, err)
	assert.Equal(t, MergeInserted, r)
	r, err = m1.Merge(ctx, loser, "node-b")
	require.NoError(t, err)
	assert.Equal(t, MergeDiscarded, r)

	r, err = m2.Merge(ctx, loser, "node-b")
	require.NoError(t, err)
	assert.Equal(t, MergeInserted, r)
	r, err = m2.Merge(ctx, winner, "node-a")
	require.NoError(t, err)
	assert.Equal(t, MergeReplaced, r)

	got1, err := m1.Get(ctx, "dup:1")
	require.NoError(t, err)
	got2, err := m2.Get(ctx, "dup:1")
	require.NoError(t, err)

	assert.True(t, got1.Equal(got2), "both replicas must converge on the same winner")
	assert.Equal(t, "https://winner.example", got1.DestinationURL)
	assert.Equal(t, int64(1), m1.Conflicts())
	assert.Equal(t, int64(1), m2.Conflicts())

	assert.Equal(t, ChangeInserted, receive(t, changes2).Kind)
	replaced := receive(t, changes2)
	assert.Equal(t, ChangeReplaced, replaced.Kind)
	require.NotNil(t, replaced.Previous)
	assert.Equal(t, "https://loser.example", replaced.Previous.DestinationURL)
}

func TestMap_Convergence_AnyOrder(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	const peers = 3
	maps := make([]*Map, peers)
	for i := range maps {
		maps[i] = openTestMap(t, fmt.Sprintf("peer-%d", i))
	}

	// Каждый узел пишет локально
	var writes []*models.ReplicaEntry
	for i := 0; i < 60; i++ {
		m := maps[rng.Intn(peers)]
		e, err := m.Create(ctx, NewRecord{
			ShortCode:      fmt.Sprintf("c%05d", i),
			DestinationURL: fmt.Sprintf("https://example.com/%d", i),
		})
		require.NoError(t, err)
		writes = append(writes, e)
	}

	// Патологические конфликты по одному ID
	writes = append(writes,
		remoteEntry("shared:1", "peer-2", 7, "https://two.example"),
		remoteEntry("shared:1", "peer-0", 9, "https://zero.example"),
		remoteEntry("shared:1", "peer-1", 1, "https://one.example"),
	)

	// Каждый узел применяет все записи в своем порядке, часть дважды
	for _, m := range maps {
		order := rng.Perm(len(writes))
		for _, idx := range order {
			_, err := m.Merge(ctx, writes[idx], "test")
			require.NoError(t, err)
		}
		for _, idx := range order[:10] {
			_, err := m.Merge(ctx, writes[idx], "test")
			require.NoError(t, err)
		}
	}

	snapshot := func(m *Map) []string {
		all, err := m.GetAll(ctx)
		require.NoError(t, err)
		out := make([]string, 0, len(all))
		for _, e := range all {
			out = append(out, e.ID+"="+e.Fingerprint())
		}
		sort.Strings(out)
		return out
	}

	reference := snapshot(maps[0])
	assert.Len(t, reference, 61)
	for _, m := range maps[1:] {
		assert.Equal(t, reference, snapshot(m))
	}

	got, err := maps[1].Get(ctx, "shared:1")
	require.NoError(t, err)
	assert.Equal(t, "https://zero.example", got.DestinationURL, "smallest node id wins")
}

func TestMap_Subscribe_OrderedDelivery(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-a")
	sub, changes := collect(m)
	defer sub.Close()

	var ids []string
	for i := 0; i < 50; i++ {
		e, err := m.Create(ctx, NewRecord{ShortCode: fmt.Sprintf("%06d", i), DestinationURL: "https://example.com"})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	for _, id := range ids {
		c := receive(t, changes)
		assert.Equal(t, ChangeInserted, c.Kind)
		assert.Equal(t, id, c.Entry.ID)
	}
}

func TestMap_Subscribe_SlowSubscriberDoesNotBlockWrites(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-a", WithSubscriberBuffer(4))

	release := make(chan struct{})
	var (
		mu       sync.Mutex
		received []Change
	)
	slow := m.Subscribe(func(c Change) {
		<-release
		mu.Lock()
		received = append(received, c)
		mu.Unlock()
	})

	fast, fastChanges := collect(m)
	defer fast.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, err := m.Create(ctx, NewRecord{ShortCode: fmt.Sprintf("%06d", i), DestinationURL: "https://example.com"})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writes blocked by slow subscriber")
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, ChangeInserted, receive(t, fastChanges).Kind)
	}
	assert.Zero(t, fast.Dropped())

	close(release)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range received {
			if c.Kind == ChangeResync {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "overflowed subscriber must get a resync marker")

	assert.Positive(t, slow.Dropped())
	slow.Close()
}

func TestMap_Subscribe_CloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := openTestMap(t, "node-a")
	sub, changes := collect(m)
	sub.Close()

	_, err := m.Create(ctx, NewRecord{ShortCode: "abc123", DestinationURL: "https://example.com"})
	require.NoError(t, err)

	select {
	case <-changes:
		t.Fatal("closed subscription received a change")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMap_SaveFailure_NoChangePublished(t *testing.T) {
	ctx := context.Background()
	var seq uint64

	mockStore := &storage.StorageMock{
		GetMaxTimestampFunc: func(ctx context.Context) (int64, error) { return 0, nil },
		NextSequenceFunc: func(ctx context.Context) (uint64, error) {
			seq++
			return seq, nil
		},
		GetEntryFunc: func(ctx context.Context, id string) (*models.ReplicaEntry, error) {
			return nil, storage.ErrEntryNotFound
		},
		SaveEntryFunc: func(ctx context.Context, entry *models.ReplicaEntry) error {
			return errors.New("disk full")
		},
	}

	m, err := Open(ctx, mockStore, "node-a", testLogger())
	require.NoError(t, err)
	_, changes := collect(m)

	_, err = m.Create(ctx, NewRecord{ShortCode: "abc123", DestinationURL: "https://example.com"})
	assert.Error(t, err)

	result, err := m.Merge(ctx, remoteEntry("node-b:1", "node-b", 1, "https://example.org"), "node-b")
	assert.Error(t, err)
	assert.Zero(t, result)

	assert.Len(t, mockStore.SaveEntryCalls(), 2)
	select {
	case <-changes:
		t.Fatal("failed write must not be published")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpen_RestoresClock(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	m, err := Open(ctx, store, "node-a", testLogger())
	require.NoError(t, err)
	_, err = m.Merge(ctx, remoteEntry("node-b:1", "node-b", 40, "https://example.com"), "node-b")
	require.NoError(t, err)

	// Повторное открытие поверх того же хранилища
	reopened, err := Open(ctx, store, "node-a", testLogger())
	require.NoError(t, err)

	e, err := reopened.Create(ctx, NewRecord{ShortCode: "abc123", DestinationURL: "https://example.org"})
	require.NoError(t, err)
	assert.Greater(t, e.Meta.Timestamp, int64(40))
}
