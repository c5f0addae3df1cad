package collection_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteadmin/api/internal/collection"
)

func lettered(orders ...int) []collection.Item {
	items := make([]collection.Item, len(orders))
	for i, order := range orders {
		items[i] = collection.Item{ID: string(rune('A' + i)), Order: order, Fields: map[string]any{}}
	}
	return items
}

func TestMoveFirstToLast(t *testing.T) {
	items := lettered(0, 1, 2)

	moved, err := collection.Move(items, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C", "A"}, ids(moved))
	assert.Equal(t, []int{0, 1, 2}, orders(moved))
	assert.Equal(t, []string{"A", "B", "C"}, ids(items), "input slice must not change")
	assert.Equal(t, []int{0, 1, 2}, orders(items))
}

func TestMoveLastToFirst(t *testing.T) {
	moved, err := collection.Move(lettered(0, 1, 2, 3), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "A", "B", "C"}, ids(moved))
	assert.True(t, collection.IsDense(moved))
}

func TestMoveRoundTrip(t *testing.T) {
	items := lettered(0, 1, 2, 3, 4)
	for src := range items {
		for dst := range items {
			moved, err := collection.Move(items, src, dst)
			require.NoError(t, err)
			back, err := collection.Move(moved, dst, src)
			require.NoError(t, err)
			assert.Equal(t, ids(items), ids(back), "move %d -> %d and back", src, dst)
			assert.True(t, collection.IsDense(back))
		}
	}
}

func TestMoveRejectsOutOfRange(t *testing.T) {
	items := lettered(0, 1, 2)
	for _, tc := range []struct{ src, dst int }{{-1, 0}, {3, 0}, {0, 3}, {0, -1}} {
		_, err := collection.Move(items, tc.src, tc.dst)
		assert.ErrorIs(t, err, collection.ErrIndexOutOfRange, "move %d -> %d", tc.src, tc.dst)
	}
	_, err := collection.Move(nil, 0, 0)
	assert.ErrorIs(t, err, collection.ErrIndexOutOfRange)
}

func TestOrderChangesListsOnlyMovedItems(t *testing.T) {
	before := lettered(0, 1, 2, 3)
	after, err := collection.Move(before, 0, 1)
	require.NoError(t, err)

	changes := collection.OrderChanges(before, after)
	assert.Equal(t, []collection.OrderChange{{ID: "B", Order: 0}, {ID: "A", Order: 1}}, changes)
}

func TestOrderChangesRepairsGaps(t *testing.T) {
	before := lettered(0, 2, 5)
	after := lettered(0, 2, 5)
	collection.Renumber(after)

	changes := collection.OrderChanges(before, after)
	assert.Equal(t, []collection.OrderChange{{ID: "B", Order: 1}, {ID: "C", Order: 2}}, changes)
}

func TestIsDense(t *testing.T) {
	assert.True(t, collection.IsDense(nil))
	assert.True(t, collection.IsDense(lettered(0, 1, 2)))
	assert.False(t, collection.IsDense(lettered(1, 2, 3)))
	assert.False(t, collection.IsDense(lettered(0, 0, 1)))
}

func seedStore(t *testing.T, records *flakyStore, key string, n int) []collection.Item {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := records.MemoryStore.Create(ctx, key, map[string]any{"title": string(rune('A' + i))}, nil, i)
		require.NoError(t, err)
	}
	items, err := records.MemoryStore.List(ctx, key)
	require.NoError(t, err)
	return items
}

func TestEngineApplyWritesChangedOrders(t *testing.T) {
	records := newFlakyStore()
	before := seedStore(t, records, "grant_progress", 4)
	after, err := collection.Move(before, 3, 1)
	require.NoError(t, err)

	engine := collection.NewEngine(records, 4)
	require.NoError(t, engine.Apply(context.Background(), "grant_progress", before, after))

	assert.Equal(t, 3, records.updateCalls(), "the first item keeps its order")
	stored, err := records.List(context.Background(), "grant_progress")
	require.NoError(t, err)
	assert.Equal(t, ids(after), ids(stored))
	assert.True(t, collection.IsDense(stored))
}

func TestEngineApplyRestoresPreviousOrdersOnFailure(t *testing.T) {
	records := newFlakyStore()
	before := seedStore(t, records, "grant_progress", 3)
	after, err := collection.Move(before, 0, 2)
	require.NoError(t, err)

	records.set(func(s *flakyStore) {
		s.failUpdate = func(call int, _ string, _ collection.Patch) error {
			if call == 2 {
				return errors.New("connection reset")
			}
			return nil
		}
	})

	engine := collection.NewEngine(records, 1)
	err = engine.Apply(context.Background(), "grant_progress", before, after)

	var persistErr *collection.PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Len(t, persistErr.Failed, 1)
	assert.NoError(t, persistErr.RevertErr)

	stored, err := records.List(context.Background(), "grant_progress")
	require.NoError(t, err)
	assert.Equal(t, ids(before), ids(stored))
	assert.Equal(t, []int{0, 1, 2}, orders(stored))
}

func TestEngineApplyWaitsForEveryWrite(t *testing.T) {
	records := newFlakyStore()
	before := seedStore(t, records, "grant_progress", 5)
	after, err := collection.Move(before, 0, 4)
	require.NoError(t, err)

	records.set(func(s *flakyStore) {
		s.failUpdate = func(call int, _ string, _ collection.Patch) error {
			if call == 1 {
				return errors.New("timeout")
			}
			return nil
		}
	})

	engine := collection.NewEngine(records, 2)
	err = engine.Apply(context.Background(), "grant_progress", before, after)
	require.Error(t, err)

	// five forward writes plus five restoring writes
	assert.Equal(t, 10, records.updateCalls())
}

func TestEngineApplyWithoutChangesIssuesNoWrites(t *testing.T) {
	records := newFlakyStore()
	before := seedStore(t, records, "grant_progress", 3)

	engine := collection.NewEngine(records, 2)
	require.NoError(t, engine.Apply(context.Background(), "grant_progress", before, before))
	assert.Zero(t, records.updateCalls())
}
