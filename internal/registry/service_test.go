package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/linkmesh/internal/cache"
	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/replica"
	"github.com/iudanet/linkmesh/internal/shortcode"
	"github.com/iudanet/linkmesh/internal/storage/boltdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedCodes выдает коды из заранее заданного списка, повторяя последний
type scriptedCodes struct {
	codes []string
	calls int
	mu    sync.Mutex
}

func (s *scriptedCodes) Generate(destination string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := min(s.calls, len(s.codes)-1)
	s.calls++
	return s.codes[i], nil
}

func (s *scriptedCodes) Length() int { return len(s.codes[0]) }
func (s *scriptedCodes) CollisionProbability(int) float64 { return 0 }

type testEnv struct {
	store   *boltdb.Storage
	replica *replica.Map
	service *Service
}

func setupService(t *testing.T, codes CodeGenerator, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := replica.Open(ctx, store, "node-a", testLogger())
	require.NoError(t, err)

	if codes == nil {
		gen, err := shortcode.New(shortcode.DefaultLength)
		require.NoError(t, err)
		codes = gen
	}

	c := cache.New(testLogger(), m.GetAll)
	svc, err := New(ctx, m, c, codes, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &testEnv{store: store, replica: m, service: svc}
}

func TestService_AddThenResolve(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	rec, err := env.service.AddRedirect(ctx, "https://example.com/page", "example")
	require.NoError(t, err)

	assert.Len(t, rec.ShortCode, 6)
	assert.Equal(t, "https://example.com/page", rec.DestinationURL)
	assert.Equal(t, "example", rec.Description)
	assert.NotEmpty(t, rec.ID)

	// Без каких-либо узлов запись резолвится сразу
	dest, err := env.service.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", dest)
}

func TestService_ResolveNotFound(t *testing.T) {
	env := setupService(t, nil)

	_, err := env.service.Resolve(context.Background(), "zzzzzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AddRedirect_InvalidInput(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	tests := []struct {
		name        string
		destination string
		description string
	}{
		{name: "empty destination", destination: ""},
		{name: "blank destination", destination: "  "},
		{name: "not a url", destination: "example"},
		{name: "description too long", destination: "https://example.com", description: string(make([]byte, 600))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.AddRedirect(ctx, tt.destination, tt.description)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, total := env.service.ListPage(ctx, 1, 20, "")
	assert.Zero(t, total, "rejected input must not be written")
}

func TestService_AddRedirect_RegeneratesTakenCode(t *testing.T) {
	ctx := context.Background()
	codes := &scriptedCodes{codes: []string{"aaaaaa", "aaaaaa", "aaaaaa", "bbbbbb"}}
	env := setupService(t, codes)

	first, err := env.service.AddRedirect(ctx, "https://example.com/1", "")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaa", first.ShortCode)

	second, err := env.service.AddRedirect(ctx, "https://example.com/2", "")
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb", second.ShortCode)
	assert.Equal(t, 4, codes.calls)
	assert.Zero(t, env.service.Stats().Collisions)
}

func TestService_AddRedirect_CodeSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	codes := &scriptedCodes{codes: []string{"aaaaaa"}}
	env := setupService(t, codes, WithMaxRetries(2))

	_, err := env.service.AddRedirect(ctx, "https://example.com/1", "")
	require.NoError(t, err)

	_, err = env.service.AddRedirect(ctx, "https://example.com/2", "")
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Equal(t, 1+3, codes.calls)

	_, total := env.service.ListPage(ctx, 1, 20, "")
	assert.Equal(t, 1, total)
}

func TestService_AddRedirect_GeneratorError(t *testing.T) {
	env := setupService(t, failingCodes{})

	_, err := env.service.AddRedirect(context.Background(), "https://example.com", "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

type failingCodes struct{}

func (failingCodes) Length() int { return 6 }
func (failingCodes) CollisionProbability(int) float64 { return 0 }
func (failingCodes) Generate(string) (string, error) {
	return "", errors.New("entropy exhausted")
}

func TestService_ListPage_SearchFilter(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	for _, desc := range []string{"blog", "shop", "Blog post"} {
		_, err := env.service.AddRedirect(ctx, "https://example.com/"+desc[:1], desc)
		require.NoError(t, err)
	}

	records, total := env.service.ListPage(ctx, 1, 20, "blog")
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)
	assert.Equal(t, "blog", records[0].Description)
	assert.Equal(t, "Blog post", records[1].Description)
}

func TestService_ListPage_Paging(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	var created []models.Redirect
	for i := 0; i < 45; i++ {
		rec, err := env.service.AddRedirect(ctx, "https://example.com/x", "")
		require.NoError(t, err)
		created = append(created, rec)
	}

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantLen   int
		wantFirst int
	}{
		{name: "first page", page: 1, pageSize: 20, wantLen: 20, wantFirst: 0},
		{name: "last partial page", page: 3, pageSize: 20, wantLen: 5, wantFirst: 40},
		{name: "beyond end", page: 9, pageSize: 20, wantLen: 0},
		{name: "page below one", page: 0, pageSize: 10, wantLen: 10, wantFirst: 0},
		{name: "default size", page: 2, pageSize: 0, wantLen: 20, wantFirst: 20},
		{name: "size capped", page: 1, pageSize: 1000, wantLen: 45, wantFirst: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, total := env.service.ListPage(ctx, tt.page, tt.pageSize, "")
			assert.Equal(t, 45, total)
			require.Len(t, records, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, created[tt.wantFirst].ID, records[0].ID)
			}
		})
	}
}

func TestService_RemoteMergeVisible(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	remote := &models.ReplicaEntry{
		Redirect: models.Redirect{
			ID:             "node-b:1",
			ShortCode:      "rem0te",
			DestinationURL: "https://remote.example",
			Description:    "from b",
			CreatedAt:      time.Now().UTC(),
		},
		Meta: models.WriteMeta{NodeID: "node-b", Timestamp: 3},
	}
	_, err := env.replica.Merge(ctx, remote, "node-b")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		dest, err := env.service.Resolve(ctx, "rem0te")
		return err == nil && dest == "https://remote.example"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_LoadsExistingRecordsOnStart(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	rec, err := env.service.AddRedirect(ctx, "https://example.com/persisted", "kept")
	require.NoError(t, err)

	// Новый кеш и сервис поверх той же реплики
	c := cache.New(testLogger(), env.replica.GetAll)
	gen, err := shortcode.New(shortcode.DefaultLength)
	require.NoError(t, err)
	restarted, err := New(ctx, env.replica, c, gen, testLogger())
	require.NoError(t, err)
	defer restarted.Close()

	dest, err := restarted.Resolve(ctx, rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/persisted", dest)

	stats := restarted.Stats()
	assert.Equal(t, "node-a", stats.NodeID)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, shortcode.DefaultLength, stats.CodeLength)
	assert.Greater(t, stats.CollisionProbability, 0.0)
	assert.Zero(t, stats.FeedDropped)
}

func TestService_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.AddRedirect(ctx, "https://example.com/concurrent", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, total := env.service.ListPage(ctx, 1, 100, "")
	assert.Equal(t, 50, total)

	codes := make(map[string]struct{})
	for _, r := range records {
		codes[r.ShortCode] = struct{}{}
	}
	assert.Len(t, codes, 50, "local uniqueness check must prevent duplicate codes")
}

func remoteEntry(seq int, ts int64) *models.ReplicaEntry {
	id := fmt.Sprintf("node-b:%d", seq)
	return &models.ReplicaEntry{
		Redirect: models.Redirect{
			ID:             id,
			ShortCode:      fmt.Sprintf("rem%03d", seq),
			DestinationURL: "https://remote.example/" + id,
			Description:    "from b",
			CreatedAt:      time.Now().UTC(),
		},
		Meta: models.WriteMeta{NodeID: "node-b", Timestamp: ts},
	}
}

func TestService_ListOrderMatchesReplica(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, nil)

	for i := 1; i <= 20; i++ {
		_, err := env.replica.Merge(ctx, remoteEntry(i, int64(i)), "node-b")
		require.NoError(t, err)
		_, err = env.service.AddRedirect(ctx, fmt.Sprintf("https://example.com/local/%d", i), "")
		require.NoError(t, err)
	}

	snapshot, err := env.replica.GetAll(ctx)
	require.NoError(t, err)
	want := make([]string, 0, len(snapshot))
	for _, e := range snapshot {
		want = append(want, e.ID)
	}

	assert.Eventually(t, func() bool {
		records, total := env.service.ListPage(ctx, 1, 100, "")
		if total != len(want) {
			return false
		}
		got := make([]string, 0, len(records))
		for _, r := range records {
			got = append(got, r.ID)
		}
		return assert.ObjectsAreEqual(want, got)
	}, 2*time.Second, 10*time.Millisecond, "cache order must follow replica insertion order")
}

func TestService_AddRedirect_ResolvableDuringResync(t *testing.T) {
	ctx := context.Background()

	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Очередь из одного элемента: поток удаленных записей постоянно вызывает ChangeResync
	m, err := replica.Open(ctx, store, "node-a", testLogger(), replica.WithSubscriberBuffer(1))
	require.NoError(t, err)

	gen, err := shortcode.New(shortcode.DefaultLength)
	require.NoError(t, err)
	svc, err := New(ctx, m, cache.New(testLogger(), m.GetAll), gen, testLogger())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 200; i++ {
			_, err := m.Merge(ctx, remoteEntry(i, int64(i)), "node-b")
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 50; i++ {
		rec, err := svc.AddRedirect(ctx, fmt.Sprintf("https://example.com/busy/%d", i), "")
		require.NoError(t, err)

		dest, err := svc.Resolve(ctx, rec.ShortCode)
		require.NoError(t, err, "record %s must resolve right after creation", rec.ID)
		assert.Equal(t, fmt.Sprintf("https://example.com/busy/%d", i), dest)
	}
	<-done
}

func TestService_AddRedirect_ContextCanceledWhileWaiting(t *testing.T) {
	env := setupService(t, nil)
	env.service.Close() // лента больше не доставляет изменения в кеш

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := env.service.AddRedirect(ctx, "https://example.com/late", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
