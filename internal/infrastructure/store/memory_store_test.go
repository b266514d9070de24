package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

// ============================================
// CRUD
// ============================================

func TestMemoryStore_CreateAndGetOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.Create(ctx, "courses", map[string]any{"type": "Yin", "capacity": "10"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	doc, err := s.GetOne(ctx, "courses", id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())
	assert.Equal(t, "Yin", doc["type"])
	assert.Equal(t, "10", doc["capacity"])
}

func TestMemoryStore_CreateIgnoresCallerID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.Create(ctx, "courses", map[string]any{"id": "mine", "type": "Yin"})
	require.NoError(t, err)
	assert.NotEqual(t, "mine", id)

	_, err = s.GetOne(ctx, "courses", "mine")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetOne_NotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetOne(context.Background(), "courses", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_InvalidPath(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Create(ctx, "", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.GetAll(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.Subscribe(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestMemoryStore_GetAll_InsertionOrderAndFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.Create(ctx, "bookings", map[string]any{"email": "a@x.com"})
	second, _ := s.Create(ctx, "bookings", map[string]any{"email": "b@x.com"})
	third, _ := s.Create(ctx, "bookings", map[string]any{"email": "a@x.com"})

	all, err := s.GetAll(ctx, "bookings")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{first, second, third}, []string{all[0].ID(), all[1].ID(), all[2].ID()})

	filtered, err := s.GetAll(ctx, "bookings", Where("email", OpEqual, "a@x.com"))
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, first, filtered[0].ID())
	assert.Equal(t, third, filtered[1].ID())

	_, err = s.GetAll(ctx, "bookings", Where("email", Op("~"), "a"))
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestMemoryStore_GetAll_EmptyCollection(t *testing.T) {
	s := NewMemoryStore()

	docs, err := s.GetAll(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestMemoryStore_Subcollections(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Create(ctx, SubPath("courses", "c1", "instances"), map[string]any{"date": "2024-01-01"})
	require.NoError(t, err)
	_, err = s.Create(ctx, SubPath("courses", "c2", "instances"), map[string]any{"date": "2024-01-02"})
	require.NoError(t, err)

	c1, err := s.GetAll(ctx, "courses/c1/instances")
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "2024-01-01", c1[0]["date"])
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, _ := s.Create(ctx, "bookings", map[string]any{"email": "a@x.com"})
	require.NoError(t, s.Delete(ctx, "bookings", id))

	_, err := s.GetOne(ctx, "bookings", id)
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting again, or in an unknown collection, is not an error
	assert.NoError(t, s.Delete(ctx, "bookings", id))
	assert.NoError(t, s.Delete(ctx, "unknown", "x"))
}

// ============================================
// Admission
// ============================================

func TestMemoryStore_CreateAdmitted_Limit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	adm := func(email string) Admission {
		return Admission{CountKey: "instance:i1", Limit: 2, UniqueKey: "i1|" + email}
	}

	_, err := s.CreateAdmitted(ctx, "bookings", map[string]any{"email": "a"}, adm("a"))
	require.NoError(t, err)
	id, err := s.CreateAdmitted(ctx, "bookings", map[string]any{"email": "b"}, adm("b"))
	require.NoError(t, err)

	_, err = s.CreateAdmitted(ctx, "bookings", map[string]any{"email": "c"}, adm("c"))
	assert.ErrorIs(t, err, ErrLimitReached)

	// a delete frees a spot
	require.NoError(t, s.Delete(ctx, "bookings", id))
	_, err = s.CreateAdmitted(ctx, "bookings", map[string]any{"email": "c"}, adm("c"))
	assert.NoError(t, err)
}

func TestMemoryStore_CreateAdmitted_UniqueCheckedFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	adm := Admission{CountKey: "instance:i1", Limit: 1, UniqueKey: "i1|a"}

	_, err := s.CreateAdmitted(ctx, "bookings", map[string]any{"email": "a"}, adm)
	require.NoError(t, err)

	// both rules fail; the duplicate is reported
	_, err = s.CreateAdmitted(ctx, "bookings", map[string]any{"email": "a"}, adm)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NotErrorIs(t, err, ErrLimitReached)
}

func TestMemoryStore_CreateAdmitted_ZeroLimit(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.CreateAdmitted(context.Background(), "bookings", map[string]any{}, Admission{CountKey: "k", Limit: 0})
	assert.ErrorIs(t, err, ErrLimitReached)
}

func TestMemoryStore_CreateAdmitted_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	const limit = 3

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.CreateAdmitted(ctx, "bookings", map[string]any{"n": n},
				Admission{CountKey: "instance:i1", Limit: limit})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
	docs, err := s.GetAll(ctx, "bookings")
	require.NoError(t, err)
	assert.Len(t, docs, limit)
}

// ============================================
// Subscriptions
// ============================================

func TestMemoryStore_Subscribe_EmitsInitialAndChanges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	path := SubPath("courses", "c1", "instances")

	_, err := s.Create(ctx, path, map[string]any{"date": "2024-01-01"})
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, path)
	require.NoError(t, err)
	defer sub.Cancel()
	assert.Equal(t, path, sub.Path())

	snap := nextSnapshot(t, sub)
	assert.Len(t, snap.Documents, 1)
	assert.False(t, snap.ReadAt.IsZero())

	_, err = s.Create(ctx, path, map[string]any{"date": "2024-01-08"})
	require.NoError(t, err)

	snap = nextSnapshot(t, sub)
	require.Len(t, snap.Documents, 2)
	assert.Equal(t, "2024-01-08", snap.Documents[1]["date"])
}

func TestMemoryStore_Subscribe_IgnoresOtherCollections(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "courses/c1/instances")
	require.NoError(t, err)
	defer sub.Cancel()

	nextSnapshot(t, sub)

	_, err = s.Create(ctx, "courses/c2/instances", map[string]any{})
	require.NoError(t, err)

	select {
	case <-sub.Snapshots():
		t.Fatal("unexpected snapshot for another collection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryStore_Subscribe_Filtered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "bookings", Where("email", OpEqual, "a@x.com"))
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Empty(t, nextSnapshot(t, sub).Documents)

	_, err = s.Create(ctx, "bookings", map[string]any{"email": "a@x.com"})
	require.NoError(t, err)
	assert.Len(t, nextSnapshot(t, sub).Documents, 1)

	// a non-matching change still produces a full snapshot
	_, err = s.Create(ctx, "bookings", map[string]any{"email": "b@x.com"})
	require.NoError(t, err)
	assert.Len(t, nextSnapshot(t, sub).Documents, 1)
}

func TestMemoryStore_Subscribe_Cancel(t *testing.T) {
	s := NewMemoryStore()

	sub, err := s.Subscribe(context.Background(), "courses")
	require.NoError(t, err)
	nextSnapshot(t, sub)

	sub.Cancel()

	_, ok := <-sub.Snapshots()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())

	// writes after cancel do not block
	_, err = s.Create(context.Background(), "courses", map[string]any{})
	assert.NoError(t, err)

	// cancelling twice is safe
	sub.Cancel()
}

func TestMemoryStore_Subscribe_ContextCancel(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := s.Subscribe(ctx, "courses")
	require.NoError(t, err)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
	assert.NoError(t, sub.Err())
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore(), 2*time.Second)
}
