package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Move removes the item at source and reinserts it at destination, then
// renumbers every item densely. The input slice is left untouched.
func Move(items []Item, source, destination int) ([]Item, error) {
	if source < 0 || source >= len(items) {
		return nil, fmt.Errorf("source %d of %d: %w", source, len(items), ErrIndexOutOfRange)
	}
	if destination < 0 || destination >= len(items) {
		return nil, fmt.Errorf("destination %d of %d: %w", destination, len(items), ErrIndexOutOfRange)
	}

	out := cloneItems(items)
	moved := out[source]
	out = append(out[:source], out[source+1:]...)
	out = append(out[:destination], append([]Item{moved}, out[destination:]...)...)
	Renumber(out)
	return out, nil
}

// Renumber sets each item's order to its index.
func Renumber(items []Item) {
	for i := range items {
		items[i].Order = i
	}
}

// IsDense reports whether the orders are exactly 0..n-1 in slice order.
func IsDense(items []Item) bool {
	for i := range items {
		if items[i].Order != i {
			return false
		}
	}
	return true
}

type OrderChange struct {
	ID    string
	Order int
}

// OrderChanges lists the items of after whose order differs from the order
// recorded for the same id in before.
func OrderChanges(before, after []Item) []OrderChange {
	previous := make(map[string]int, len(before))
	for _, it := range before {
		previous[it.ID] = it.Order
	}
	var changes []OrderChange
	for _, it := range after {
		if old, ok := previous[it.ID]; ok && old == it.Order {
			continue
		}
		changes = append(changes, OrderChange{ID: it.ID, Order: it.Order})
	}
	return changes
}

func sortByOrder(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Order < items[j].Order
	})
}

// Engine writes order changes to the record store, one update per item.
type Engine struct {
	store       RecordStore
	concurrency int
}

func NewEngine(store RecordStore, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Engine{store: store, concurrency: concurrency}
}

// PersistError lists the ids whose order write failed. RevertErr is set when
// restoring the previous orders did not fully succeed either.
type PersistError struct {
	Failed    []string
	Err       error
	RevertErr error
}

func (e *PersistError) Error() string {
	msg := fmt.Sprintf("persist order: %d write(s) failed: %v", len(e.Failed), e.Err)
	if e.RevertErr != nil {
		msg += fmt.Sprintf("; revert: %v", e.RevertErr)
	}
	return msg
}

func (e *PersistError) Unwrap() error { return e.Err }

// Apply writes the orders of after that differ from before. When any write
// fails, every changed item is written back to its order in before so the
// store does not keep a mix of old and new positions.
func (e *Engine) Apply(ctx context.Context, collectionKey string, before, after []Item) error {
	changes := OrderChanges(before, after)
	failed, err := e.persist(ctx, collectionKey, changes)
	if err == nil {
		return nil
	}

	previous := make(map[string]int, len(before))
	for _, it := range before {
		previous[it.ID] = it.Order
	}
	revert := make([]OrderChange, 0, len(changes))
	for _, change := range changes {
		if old, ok := previous[change.ID]; ok {
			revert = append(revert, OrderChange{ID: change.ID, Order: old})
		}
	}
	_, revertErr := e.persist(ctx, collectionKey, revert)
	return &PersistError{Failed: failed, Err: err, RevertErr: revertErr}
}

// persist issues one update per change and waits for all of them. A failed
// write does not cancel the others.
func (e *Engine) persist(ctx context.Context, collectionKey string, changes []OrderChange) ([]string, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		failed []string
		errs   []error
	)
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, change := range changes {
		g.Go(func() error {
			if err := e.store.Update(ctx, collectionKey, change.ID, OrderPatch(change.Order)); err != nil {
				mu.Lock()
				failed = append(failed, change.ID)
				errs = append(errs, fmt.Errorf("%s: %w", change.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil, nil
	}
	sort.Strings(failed)
	return failed, errors.Join(errs...)
}
