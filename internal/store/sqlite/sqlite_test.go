package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urisubmit/urisubmit/internal/opkey"
	"github.com/urisubmit/urisubmit/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "operations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	base := time.Date(2025, 7, 9, 16, 10, 21, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	payload := json.RawMessage(`{"submission":{"uri":"https://evil.example"}}`)

	require.NoError(t, s.Upsert(ctx, "projects/1/operations/a", "https://evil.example", payload))

	rec, err := s.Get(ctx, "projects/1/operations/a")
	require.NoError(t, err)
	assert.Equal(t, "projects/1/operations/a", rec.Name)
	assert.Equal(t, "https://evil.example", rec.URL)
	assert.Equal(t, opkey.Key(rec.Name), rec.Key)
	assert.JSONEq(t, string(payload), string(rec.Payload))
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "projects/1/operations/missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	s.now = steppingClock()
	ctx := context.Background()
	payload := json.RawMessage(`{"submission":{"uri":"x"}}`)

	require.NoError(t, s.Upsert(ctx, "op", "x", payload))
	first, err := s.Get(ctx, "op")
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, "op", "x", payload))
	second, err := s.Get(ctx, "op")
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	s.now = steppingClock()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("projects/1/operations/%d", i)
		require.NoError(t, s.Upsert(ctx, name, "u", nil))
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "projects/1/operations/2", list[0].Name)
	assert.Equal(t, "projects/1/operations/1", list[1].Name)
	assert.Equal(t, "projects/1/operations/0", list[2].Name)
	assert.JSONEq(t, `{}`, string(list[2].Payload))
}

func TestListEmpty(t *testing.T) {
	s := openTestStore(t)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestConcurrentUpsertsDistinctNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("projects/1/operations/%d", i)
			assert.NoError(t, s.Upsert(ctx, name, name, nil))
		}(i)
	}
	wg.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestUpsertRejectsEmptyNameAndBadPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	assert.Error(t, s.Upsert(ctx, "", "u", nil))
	assert.Error(t, s.Upsert(ctx, "op", "u", json.RawMessage(`{not json`)))
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "operations.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Upsert(context.Background(), "op", "u", nil)
	require.ErrorIs(t, err, store.ErrUnavailable)
	_, err = s.List(context.Background())
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Upsert(ctx, "projects/1/operations/a", "https://a.example", nil))
	require.NoError(t, s.Upsert(ctx, "projects/1/operations/b", "https://b.example", nil))
	require.NoError(t, s.Upsert(ctx, "projects/1/operations/a", "https://a.example", nil))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
