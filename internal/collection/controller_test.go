package collection_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteadmin/api/internal/collection"
)

func TestAddToEmptyCollectionStartsAtZero(t *testing.T) {
	f := newFixture(t, "grant_progress")

	item, err := f.ctrl.Add(context.Background(), map[string]any{"title": "Seed funding"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, item.Order)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, []string{item.ID}, ids(f.ctrl.Items()))
	assert.Equal(t, []int{0}, orders(f.stored(t)))
}

func TestAddAppendsAtEnd(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "Phase 1", "Phase 2", "Phase 3")

	assert.Equal(t, added, ids(f.ctrl.Items()))
	assert.Equal(t, []int{0, 1, 2}, orders(f.ctrl.Items()))
	assert.Equal(t, added, ids(f.stored(t)))
}

func TestAddFailureLeavesListUnchanged(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "Phase 1")
	f.store.set(func(s *flakyStore) { s.createErr = errors.New("insert failed") })

	_, err := f.ctrl.Add(context.Background(), map[string]any{"title": "Phase 2"}, nil)
	require.Error(t, err)
	assert.Equal(t, added, ids(f.ctrl.Items()))
}

func TestAddValidatesFields(t *testing.T) {
	f := newFixture(t, "team_members")
	ctx := context.Background()

	_, err := f.ctrl.Add(ctx, map[string]any{"name": "Avery"}, nil)
	var validationErr *collection.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "title", validationErr.Field)

	_, err = f.ctrl.Add(ctx, map[string]any{"name": "Avery", "title": "CEO", "shoe_size": 9}, nil)
	assert.ErrorIs(t, err, collection.ErrValidation)

	_, err = f.ctrl.Add(ctx, map[string]any{"name": "Avery", "title": "CEO", "linkedin_url": "linkedin.com/in/avery"}, nil)
	assert.ErrorIs(t, err, collection.ErrValidation)

	assert.Empty(t, f.stored(t))
}

func TestAddRejectsAssetFromAnotherCollection(t *testing.T) {
	f := newFixture(t, "team_members")
	ref := &collection.AssetRef{PublicURL: "http://cdn.test/site-assets/academic_partners/x.png", StoragePath: "academic_partners/x.png"}

	_, err := f.ctrl.Add(context.Background(), map[string]any{"name": "Avery", "title": "CEO"}, ref)
	assert.ErrorIs(t, err, collection.ErrValidation)
}

func TestAddRejectsHalfAnAsset(t *testing.T) {
	f := newFixture(t, "team_members")
	ref := &collection.AssetRef{StoragePath: "team_members/x.png"}

	_, err := f.ctrl.Add(context.Background(), map[string]any{"name": "Avery", "title": "CEO"}, ref)
	assert.ErrorIs(t, err, collection.ErrInvalidAsset)
}

func TestReorderMovesFirstToLast(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B", "C")

	items, err := f.ctrl.Reorder(context.Background(), 0, 2)
	require.NoError(t, err)

	want := []string{added[1], added[2], added[0]}
	assert.Equal(t, want, ids(items))
	assert.Equal(t, []int{0, 1, 2}, orders(items))
	assert.Equal(t, want, ids(f.stored(t)))
	assert.Equal(t, []int{0, 1, 2}, orders(f.stored(t)))
}

func TestReorderToSamePositionIsNoop(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B", "C")

	items, err := f.ctrl.Reorder(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, added, ids(items))
	assert.Zero(t, f.store.updateCalls())
}

func TestReorderSingleItemIsNoop(t *testing.T) {
	f := newFixture(t, "grant_progress")
	f.seed(t, "Only")

	_, err := f.ctrl.Reorder(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, f.store.updateCalls())
}

func TestReorderRejectsOutOfRange(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B")

	_, err := f.ctrl.Reorder(context.Background(), 0, 2)
	assert.ErrorIs(t, err, collection.ErrIndexOutOfRange)
	assert.Equal(t, added, ids(f.ctrl.Items()))
}

func TestReorderFailureRefetchesPreReorderOrder(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B", "C")
	f.store.set(func(s *flakyStore) {
		s.failUpdate = func(call int, _ string, _ collection.Patch) error {
			if call == 2 {
				return errors.New("write timeout")
			}
			return nil
		}
	})

	_, err := f.ctrl.Reorder(context.Background(), 0, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, collection.ErrReorderPersist)

	var reorderErr *collection.ReorderError
	require.ErrorAs(t, err, &reorderErr)
	assert.Len(t, reorderErr.Failed, 1)
	assert.NoError(t, reorderErr.RefetchErr)
	assert.Equal(t, added, ids(reorderErr.Items))

	assert.Equal(t, added, ids(f.ctrl.Items()))

	loaded, err := f.ctrl.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, added, ids(loaded))
	assert.Equal(t, []int{0, 1, 2}, orders(loaded))
}

func TestReorderFailureWithStoreDownMarksUnloaded(t *testing.T) {
	f := newFixture(t, "grant_progress")
	f.seed(t, "A", "B", "C")
	f.store.set(func(s *flakyStore) {
		s.failUpdate = func(int, string, collection.Patch) error { return errors.New("store down") }
		s.listErr = errors.New("store down")
	})

	_, err := f.ctrl.Reorder(context.Background(), 2, 0)

	var reorderErr *collection.ReorderError
	require.ErrorAs(t, err, &reorderErr)
	assert.Error(t, reorderErr.RefetchErr)
	assert.Nil(t, reorderErr.Items)
	assert.False(t, f.ctrl.Loaded())
	assert.Empty(t, f.ctrl.Items())
}

func TestLoadFailureKeepsPreviousList(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B")
	f.store.set(func(s *flakyStore) { s.listErr = errors.New("store down") })

	_, err := f.ctrl.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, added, ids(f.ctrl.Items()))
	assert.True(t, f.ctrl.Loaded())
}

func TestLoadSortsByStoredOrder(t *testing.T) {
	f := newFixture(t, "grant_progress")
	ctx := context.Background()
	second, err := f.store.MemoryStore.Create(ctx, "grant_progress", map[string]any{"title": "B"}, nil, 1)
	require.NoError(t, err)
	first, err := f.store.MemoryStore.Create(ctx, "grant_progress", map[string]any{"title": "A"}, nil, 0)
	require.NoError(t, err)

	items, err := f.ctrl.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ids(items))
}

func TestRemoveKeepsRelativeOrder(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B", "C", "D")

	require.NoError(t, f.ctrl.Remove(context.Background(), added[1]))

	want := []string{added[0], added[2], added[3]}
	assert.Equal(t, want, ids(f.ctrl.Items()))
	assert.Equal(t, []int{0, 1, 2}, orders(f.ctrl.Items()))
	assert.Equal(t, want, ids(f.stored(t)))
	assert.Equal(t, []int{0, 1, 2}, orders(f.stored(t)))
}

func TestRemoveOrderFailureReportsDeletedItem(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B", "C")
	f.store.set(func(s *flakyStore) {
		s.failUpdate = func(int, string, collection.Patch) error { return errors.New("write timeout") }
	})

	err := f.ctrl.Remove(context.Background(), added[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, collection.ErrReorderPersist)

	var reorderErr *collection.ReorderError
	require.ErrorAs(t, err, &reorderErr)
	assert.Equal(t, added[0], reorderErr.Removed)
	assert.NoError(t, reorderErr.RefetchErr)
	assert.Equal(t, added[1:], ids(reorderErr.Items))
	assert.Equal(t, added[1:], ids(f.ctrl.Items()))
	assert.NotContains(t, ids(f.stored(t)), added[0])
}

func TestReorderFailureLeavesRemovedEmpty(t *testing.T) {
	f := newFixture(t, "grant_progress")
	f.seed(t, "A", "B")
	f.store.set(func(s *flakyStore) {
		s.failUpdate = func(int, string, collection.Patch) error { return errors.New("write timeout") }
	})

	_, err := f.ctrl.Reorder(context.Background(), 0, 1)

	var reorderErr *collection.ReorderError
	require.ErrorAs(t, err, &reorderErr)
	assert.Empty(t, reorderErr.Removed)
}

func TestRemoveUnknownItem(t *testing.T) {
	f := newFixture(t, "grant_progress")
	f.seed(t, "A")

	err := f.ctrl.Remove(context.Background(), "itm_missing")
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func TestRemoveRecordFailureKeepsItem(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B")
	f.store.set(func(s *flakyStore) { s.deleteErr = errors.New("delete failed") })

	err := f.ctrl.Remove(context.Background(), added[0])
	require.Error(t, err)
	assert.Equal(t, added, ids(f.ctrl.Items()))
}

func TestRandomMutationsKeepOrdersDense(t *testing.T) {
	f := newFixture(t, "grant_progress")
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))

	for step := 0; step < 150; step++ {
		n := len(f.ctrl.Items())
		switch op := rng.IntN(3); {
		case op == 0 || n < 2:
			_, err := f.ctrl.Add(ctx, map[string]any{"title": "item"}, nil)
			require.NoError(t, err)
		case op == 1:
			victim := f.ctrl.Items()[rng.IntN(n)].ID
			require.NoError(t, f.ctrl.Remove(ctx, victim))
		default:
			_, err := f.ctrl.Reorder(ctx, rng.IntN(n), rng.IntN(n))
			require.NoError(t, err)
		}

		local := f.ctrl.Items()
		require.True(t, collection.IsDense(local), "step %d: local orders %v", step, orders(local))
		stored := f.stored(t)
		require.Equal(t, ids(local), ids(stored), "step %d", step)
		require.True(t, collection.IsDense(stored), "step %d: stored orders %v", step, orders(stored))
	}
}

func TestUpdateDuringReorderKeepsListsIndependent(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B", "C", "D")
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := f.ctrl.Update(ctx, added[i%len(added)], collection.Change{
				Fields: map[string]any{"description": strings.Repeat("x", i%7+1)},
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			items, err := f.ctrl.Reorder(ctx, i%len(added), (i+1)%len(added))
			if !assert.NoError(t, err) {
				return
			}
			for _, item := range items {
				_ = item.Fields["description"]
				item.Fields["title"] = "caller copy"
			}
		}
	}()
	wg.Wait()

	local := f.ctrl.Items()
	assert.True(t, collection.IsDense(local))
	assert.ElementsMatch(t, added, ids(local))
	for _, item := range local {
		assert.NotEqual(t, "caller copy", item.Fields["title"])
	}
}

func TestStructuralMutationWhileBusyFailsFast(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "A", "B")

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.store.set(func(s *flakyStore) {
		s.createGate = gate
		s.createEntered = entered
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Add(context.Background(), map[string]any{"title": "C"}, nil)
		done <- err
	}()
	<-entered

	_, err := f.ctrl.Reorder(context.Background(), 0, 1)
	assert.ErrorIs(t, err, collection.ErrBusy)
	assert.ErrorIs(t, f.ctrl.Remove(context.Background(), added[0]), collection.ErrBusy)
	_, err = f.ctrl.Add(context.Background(), map[string]any{"title": "D"}, nil)
	assert.ErrorIs(t, err, collection.ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Len(t, f.ctrl.Items(), 3)

	_, err = f.ctrl.Reorder(context.Background(), 0, 1)
	assert.NoError(t, err)
}

func TestUpdateAppliesLocallyWithoutRollback(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "Phase 1")
	f.store.set(func(s *flakyStore) {
		s.failUpdate = func(int, string, collection.Patch) error { return errors.New("write failed") }
	})

	_, err := f.ctrl.Update(context.Background(), added[0], collection.Change{Fields: map[string]any{"title": "Phase one"}})
	require.Error(t, err)
	assert.Equal(t, "Phase one", f.ctrl.Items()[0].Fields["title"])
	assert.Equal(t, "Phase 1", f.stored(t)[0].Fields["title"])

	f.store.set(func(s *flakyStore) { s.failUpdate = nil })
	item, err := f.ctrl.Update(context.Background(), added[0], collection.Change{Fields: map[string]any{"title": "Phase one"}})
	require.NoError(t, err)
	assert.Equal(t, "Phase one", item.Fields["title"])
	assert.Equal(t, "Phase one", f.stored(t)[0].Fields["title"])
}

func TestUpdateClearsOptionalField(t *testing.T) {
	f := newFixture(t, "grant_progress")
	ctx := context.Background()
	item, err := f.ctrl.Add(ctx, map[string]any{"title": "Phase 1", "date_label": "Q1"}, nil)
	require.NoError(t, err)

	updated, err := f.ctrl.Update(ctx, item.ID, collection.Change{Fields: map[string]any{"date_label": nil}})
	require.NoError(t, err)
	assert.NotContains(t, updated.Fields, "date_label")
	assert.NotContains(t, f.stored(t)[0].Fields, "date_label")
}

func TestUpdateRejectsBlankRequiredField(t *testing.T) {
	f := newFixture(t, "grant_progress")
	added := f.seed(t, "Phase 1")

	_, err := f.ctrl.Update(context.Background(), added[0], collection.Change{Fields: map[string]any{"title": "   "}})
	assert.ErrorIs(t, err, collection.ErrValidation)
	assert.Equal(t, "Phase 1", f.ctrl.Items()[0].Fields["title"])
}

func TestUpdateUnknownItem(t *testing.T) {
	f := newFixture(t, "grant_progress")
	f.seed(t, "Phase 1")

	_, err := f.ctrl.Update(context.Background(), "itm_missing", collection.Change{Fields: map[string]any{"title": "x"}})
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func addMember(t *testing.T, f *fixture, name string) collection.Item {
	t.Helper()
	ctx := context.Background()
	ref, err := f.ctrl.Stage(ctx, pngUpload(strings.ToLower(name)+".png"))
	require.NoError(t, err)
	item, err := f.ctrl.Add(ctx, map[string]any{"name": name, "title": "Engineer"}, &ref)
	require.NoError(t, err)
	return item
}

func TestAddRejectsAssetHeldByAnotherItem(t *testing.T) {
	f := newFixture(t, "team_members")
	held := addMember(t, f, "Avery")

	_, err := f.ctrl.Add(context.Background(), map[string]any{"name": "Blake", "title": "Designer"}, held.Asset)
	assert.ErrorIs(t, err, collection.ErrAssetInUse)
	assert.Len(t, f.stored(t), 1)
	assert.True(t, f.blobs.has(held.Asset.StoragePath))
}

func TestUpdateRejectsAssetHeldByAnotherItem(t *testing.T) {
	f := newFixture(t, "team_members")
	held := addMember(t, f, "Avery")
	other := addMember(t, f, "Blake")

	_, err := f.ctrl.Update(context.Background(), other.ID, collection.Change{Asset: held.Asset})
	assert.ErrorIs(t, err, collection.ErrAssetInUse)

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, other.Asset, stored[1].Asset)
	assert.Equal(t, other.Asset, f.ctrl.Items()[1].Asset)

	require.NoError(t, f.ctrl.Remove(context.Background(), other.ID))
	assert.True(t, f.blobs.has(held.Asset.StoragePath))
}

func TestUpdateKeepsOwnAsset(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")

	updated, err := f.ctrl.Update(context.Background(), item.ID, collection.Change{Asset: item.Asset})
	require.NoError(t, err)
	assert.Equal(t, item.Asset, updated.Asset)
	assert.True(t, f.blobs.has(item.Asset.StoragePath))
}

func TestStageThenAddAttachesAsset(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")

	require.NotNil(t, item.Asset)
	assert.True(t, strings.HasPrefix(item.Asset.StoragePath, "team_members/"))
	assert.True(t, strings.HasSuffix(item.Asset.StoragePath, ".png"))
	assert.Equal(t, "http://cdn.test/site-assets/"+item.Asset.StoragePath, item.Asset.PublicURL)
	assert.True(t, f.blobs.has(item.Asset.StoragePath))
	assert.Equal(t, collection.Attached, f.ctrl.AssetState(item.ID))
	assert.Equal(t, item.Asset, f.stored(t)[0].Asset)
}

func TestStageRejectsNonImage(t *testing.T) {
	f := newFixture(t, "team_members")
	up := pngUpload("notes.txt")
	up.ContentType = "text/plain"

	_, err := f.ctrl.Stage(context.Background(), up)
	assert.ErrorIs(t, err, collection.ErrValidation)
	assert.Empty(t, f.blobs.log())
}

func TestStageRejectsOversizedFile(t *testing.T) {
	f := newFixture(t, "team_members")
	up := pngUpload("huge.png")
	up.Size = 2 << 20

	_, err := f.ctrl.Stage(context.Background(), up)
	assert.ErrorIs(t, err, collection.ErrValidation)
}

func TestStageOnCollectionWithoutAssets(t *testing.T) {
	f := newFixture(t, "grant_progress")

	_, err := f.ctrl.Stage(context.Background(), pngUpload("x.png"))
	assert.ErrorIs(t, err, collection.ErrValidation)
}

func TestStageUploadFailure(t *testing.T) {
	f := newFixture(t, "team_members")
	f.blobs.set(func(b *recordingBlobs) { b.uploadErr = errors.New("bucket unavailable") })

	_, err := f.ctrl.Stage(context.Background(), pngUpload("x.png"))
	assert.ErrorIs(t, err, collection.ErrUpload)
}

func TestDiscardStagedUpload(t *testing.T) {
	f := newFixture(t, "team_members")
	ctx := context.Background()
	ref, err := f.ctrl.Stage(ctx, pngUpload("draft.png"))
	require.NoError(t, err)
	require.True(t, f.blobs.has(ref.StoragePath))

	require.NoError(t, f.ctrl.Discard(ctx, ref))
	assert.False(t, f.blobs.has(ref.StoragePath))

	foreign := collection.AssetRef{PublicURL: "http://cdn.test/x", StoragePath: "care_solutions/x.png"}
	assert.ErrorIs(t, f.ctrl.Discard(ctx, foreign), collection.ErrValidation)
}

func TestRemoveDeletesAssetBeforeRecord(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")

	require.NoError(t, f.ctrl.Remove(context.Background(), item.ID))

	assert.False(t, f.blobs.has(item.Asset.StoragePath))
	assert.Contains(t, f.blobs.log(), "delete "+item.Asset.StoragePath)
	assert.Empty(t, f.stored(t))
	assert.Equal(t, collection.NoAsset, f.ctrl.AssetState(item.ID))
}

func TestRemoveSucceedsWhenAssetDeleteFails(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")
	other := addMember(t, f, "Blake")
	f.blobs.set(func(b *recordingBlobs) { b.deleteErr = errors.New("storage offline") })

	require.NoError(t, f.ctrl.Remove(context.Background(), item.ID))

	assert.Equal(t, []string{other.ID}, ids(f.ctrl.Items()))
	assert.Equal(t, []string{other.ID}, ids(f.stored(t)))
	assert.Equal(t, []int{0}, orders(f.stored(t)))
	assert.True(t, f.blobs.has(item.Asset.StoragePath), "orphaned blob is left behind")
}

func TestReplaceAssetUploadsBeforeDeletingOld(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")
	old := *item.Asset

	updated, err := f.ctrl.ReplaceAsset(context.Background(), item.ID, pngUpload("new.png"))
	require.NoError(t, err)
	require.NotNil(t, updated.Asset)
	assert.NotEqual(t, old.StoragePath, updated.Asset.StoragePath)

	log := f.blobs.log()
	uploadAt, deleteAt := -1, -1
	for i, op := range log {
		switch op {
		case "upload " + updated.Asset.StoragePath:
			uploadAt = i
		case "delete " + old.StoragePath:
			deleteAt = i
		}
	}
	require.NotEqual(t, -1, uploadAt)
	require.NotEqual(t, -1, deleteAt)
	assert.Less(t, uploadAt, deleteAt)

	assert.False(t, f.blobs.has(old.StoragePath))
	assert.True(t, f.blobs.has(updated.Asset.StoragePath))
	assert.Equal(t, updated.Asset, f.stored(t)[0].Asset)
	assert.Equal(t, collection.Attached, f.ctrl.AssetState(item.ID))
}

func TestReplaceAssetFailedUploadKeepsCurrentAsset(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")
	f.blobs.set(func(b *recordingBlobs) { b.uploadErr = errors.New("bucket unavailable") })

	_, err := f.ctrl.ReplaceAsset(context.Background(), item.ID, pngUpload("new.png"))
	assert.ErrorIs(t, err, collection.ErrUpload)

	assert.Equal(t, item.Asset, f.ctrl.Items()[0].Asset)
	assert.Equal(t, item.Asset, f.stored(t)[0].Asset)
	assert.True(t, f.blobs.has(item.Asset.StoragePath))
	assert.NotContains(t, f.blobs.log(), "delete "+item.Asset.StoragePath)
	assert.Equal(t, collection.Attached, f.ctrl.AssetState(item.ID))
}

func TestReplaceAssetRecordFailureRemovesNewBlob(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")
	f.store.set(func(s *flakyStore) {
		s.failUpdate = func(int, string, collection.Patch) error { return errors.New("write failed") }
	})

	_, err := f.ctrl.ReplaceAsset(context.Background(), item.ID, pngUpload("new.png"))
	require.Error(t, err)

	assert.Equal(t, 1, f.blobs.Len())
	assert.True(t, f.blobs.has(item.Asset.StoragePath))
	assert.Equal(t, item.Asset, f.ctrl.Items()[0].Asset)
	assert.Equal(t, collection.Attached, f.ctrl.AssetState(item.ID))
}

func TestReplaceAssetOnItemWithoutOne(t *testing.T) {
	f := newFixture(t, "team_members")
	item, err := f.ctrl.Add(context.Background(), map[string]any{"name": "Avery", "title": "CEO"}, nil)
	require.NoError(t, err)
	assert.Equal(t, collection.NoAsset, f.ctrl.AssetState(item.ID))

	updated, err := f.ctrl.ReplaceAsset(context.Background(), item.ID, pngUpload("first.png"))
	require.NoError(t, err)
	require.NotNil(t, updated.Asset)
	assert.Equal(t, collection.Attached, f.ctrl.AssetState(item.ID))
	assert.Equal(t, updated.Asset, f.stored(t)[0].Asset)
}

func TestUpdateSwapsStagedAssetAndDeletesOld(t *testing.T) {
	f := newFixture(t, "team_members")
	ctx := context.Background()
	item := addMember(t, f, "Avery")
	next, err := f.ctrl.Stage(ctx, pngUpload("next.png"))
	require.NoError(t, err)

	updated, err := f.ctrl.Update(ctx, item.ID, collection.Change{Asset: &next})
	require.NoError(t, err)

	assert.Equal(t, &next, updated.Asset)
	assert.Equal(t, &next, f.stored(t)[0].Asset)
	assert.False(t, f.blobs.has(item.Asset.StoragePath))
	assert.True(t, f.blobs.has(next.StoragePath))
	assert.Equal(t, collection.Attached, f.ctrl.AssetState(item.ID))
}

func TestUpdateClearAssetDeletesBlob(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")

	updated, err := f.ctrl.Update(context.Background(), item.ID, collection.Change{ClearAsset: true})
	require.NoError(t, err)

	assert.Nil(t, updated.Asset)
	assert.Nil(t, f.stored(t)[0].Asset)
	assert.False(t, f.blobs.has(item.Asset.StoragePath))
	assert.Equal(t, collection.NoAsset, f.ctrl.AssetState(item.ID))
}

func TestUpdateRejectsSetAndClearTogether(t *testing.T) {
	f := newFixture(t, "team_members")
	item := addMember(t, f, "Avery")

	_, err := f.ctrl.Update(context.Background(), item.ID, collection.Change{Asset: item.Asset, ClearAsset: true})
	assert.ErrorIs(t, err, collection.ErrValidation)
}
