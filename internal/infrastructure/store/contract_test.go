package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behavior shared by every DocumentStore
// backend. Collections are named per run so a shared database can be reused.
func runStoreContract(t *testing.T, ds DocumentStore, wait time.Duration) {
	collection := func() string {
		return "bookings-" + uuid.NewString()[:8]
	}

	t.Run("UniqueCheckedBeforeLimit", func(t *testing.T) {
		ctx := context.Background()
		coll := collection()
		adm := Admission{CountKey: "instance:i1", Limit: 1, UniqueKey: "i1|a@x.com"}

		_, err := ds.CreateAdmitted(ctx, coll, map[string]any{"email": "a@x.com"}, adm)
		require.NoError(t, err)

		_, err = ds.CreateAdmitted(ctx, coll, map[string]any{"email": "a@x.com"}, adm)
		assert.ErrorIs(t, err, ErrAlreadyExists)

		_, err = ds.CreateAdmitted(ctx, coll, map[string]any{"email": "b@x.com"},
			Admission{CountKey: "instance:i1", Limit: 1, UniqueKey: "i1|b@x.com"})
		assert.ErrorIs(t, err, ErrLimitReached)

		docs, err := ds.GetAll(ctx, coll)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("ZeroLimit", func(t *testing.T) {
		ctx := context.Background()
		coll := collection()

		_, err := ds.CreateAdmitted(ctx, coll, map[string]any{"email": "a@x.com"},
			Admission{CountKey: "instance:open", Limit: 5, UniqueKey: "held"})
		require.NoError(t, err)

		_, err = ds.CreateAdmitted(ctx, coll, map[string]any{"email": "b@x.com"},
			Admission{CountKey: "instance:closed", Limit: 0, UniqueKey: "free"})
		assert.ErrorIs(t, err, ErrLimitReached)

		_, err = ds.CreateAdmitted(ctx, coll, map[string]any{"email": "a@x.com"},
			Admission{CountKey: "instance:closed", Limit: 0, UniqueKey: "held"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("DeleteFreesSeatAndKey", func(t *testing.T) {
		ctx := context.Background()
		coll := collection()
		adm := Admission{CountKey: "instance:i1", Limit: 1, UniqueKey: "i1|a@x.com"}

		id, err := ds.CreateAdmitted(ctx, coll, map[string]any{"email": "a@x.com"}, adm)
		require.NoError(t, err)

		_, err = ds.CreateAdmitted(ctx, coll, map[string]any{"email": "b@x.com"},
			Admission{CountKey: "instance:i1", Limit: 1, UniqueKey: "i1|b@x.com"})
		require.ErrorIs(t, err, ErrLimitReached)

		require.NoError(t, ds.Delete(ctx, coll, id))
		require.NoError(t, ds.Delete(ctx, coll, id))

		again, err := ds.CreateAdmitted(ctx, coll, map[string]any{"email": "a@x.com"}, adm)
		require.NoError(t, err)
		assert.NotEqual(t, id, again)

		_, err = ds.GetOne(ctx, coll, id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SubscribeFollowsChanges", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		coll := collection()

		sub, err := ds.Subscribe(ctx, coll)
		require.NoError(t, err)
		defer sub.Cancel()

		next := func() Snapshot {
			t.Helper()
			select {
			case snap, ok := <-sub.Snapshots():
				require.True(t, ok, "subscription closed: %v", sub.Err())
				return snap
			case <-time.After(wait):
				t.Fatal("timed out waiting for snapshot")
				return Snapshot{}
			}
		}
		// skip emissions that predate the write being waited for
		until := func(n int) Snapshot {
			t.Helper()
			for {
				snap := next()
				if len(snap.Documents) == n {
					return snap
				}
			}
		}

		assert.Empty(t, next().Documents)

		id, err := ds.Create(ctx, coll, map[string]any{"email": "a@x.com"})
		require.NoError(t, err)
		snap := until(1)
		assert.Equal(t, id, snap.Documents[0].ID())

		require.NoError(t, ds.Delete(ctx, coll, id))
		until(0)

		sub.Cancel()
		select {
		case <-sub.Done():
		case <-time.After(wait):
			t.Fatal("subscription did not stop")
		}
	})
}
