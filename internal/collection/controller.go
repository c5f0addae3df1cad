package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	Locker             Locker
	ReorderConcurrency int
	MaxUploadBytes     int64
	Logger             *zap.Logger
}

// Change is an edit made in the admin form. Asset, when set, must be a ref
// previously returned by Stage.
type Change struct {
	Fields     map[string]any
	Asset      *AssetRef
	ClearAsset bool
}

// Controller is the in-memory view of one collection. Add, Remove, Reorder
// and ReplaceAsset are structural: only one of them may run at a time and a
// second one fails fast with ErrBusy.
type Controller struct {
	schema Schema
	store  RecordStore
	engine *Engine
	assets *Assets
	locker Locker
	logger *zap.Logger

	busy atomic.Bool

	mu     sync.Mutex
	items  []Item
	loaded bool
}

func NewController(schema Schema, store RecordStore, blobs BlobStore, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		schema: schema,
		store:  store,
		engine: NewEngine(store, opts.ReorderConcurrency),
		assets: NewAssets(blobs, schema, opts.MaxUploadBytes, logger),
		locker: opts.Locker,
		logger: logger.With(zap.String("collection", schema.Key)),
	}
}

func (c *Controller) Schema() Schema { return c.schema }

func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Items returns a copy of the current list.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items)
}

// AssetState reports the asset lifecycle state of an item.
func (c *Controller) AssetState(id string) AssetState {
	return c.assets.State(id)
}

// Load replaces the in-memory list with the store's. On failure the previous
// list is kept as is.
func (c *Controller) Load(ctx context.Context) ([]Item, error) {
	items, err := c.store.List(ctx, c.schema.Key)
	if err != nil {
		c.logger.Error("load failed", zap.Error(err))
		return nil, fmt.Errorf("load %s: %w", c.schema.Key, err)
	}
	sortByOrder(items)
	if !IsDense(items) {
		c.logger.Warn("stored order is not dense", zap.Int("items", len(items)))
	}

	c.mu.Lock()
	c.items = cloneItems(items)
	c.loaded = true
	c.mu.Unlock()
	c.assets.reset(items)
	return cloneItems(items), nil
}

func (c *Controller) ensureLoaded(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}
	_, err := c.Load(ctx)
	return err
}

func (c *Controller) beginMutation(ctx context.Context) (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	release := func() {}
	if c.locker != nil {
		unlock, err := c.locker.Acquire(ctx, "collection:"+c.schema.Key)
		if err != nil {
			c.busy.Store(false)
			return nil, err
		}
		release = unlock
	}
	return func() {
		release()
		c.busy.Store(false)
	}, nil
}

func (c *Controller) checkAsset(ref *AssetRef) error {
	if ref == nil {
		return nil
	}
	if !c.schema.AllowAsset {
		return &ValidationError{Field: "asset", Message: "this collection does not take uploads"}
	}
	if !ref.Valid() {
		return ErrInvalidAsset
	}
	if !c.assets.owns(ref.StoragePath) {
		return &ValidationError{Field: "asset", Message: "storage path does not belong to this collection"}
	}
	return nil
}

// assetOwner returns the id of the item that holds path, or "". Callers hold c.mu.
func (c *Controller) assetOwner(path string) string {
	for i := range c.items {
		if c.items[i].Asset != nil && c.items[i].Asset.StoragePath == path {
			return c.items[i].ID
		}
	}
	return ""
}

func (c *Controller) indexOf(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Add creates an item at the end of the list. The local list changes only
// once the store has assigned the id.
func (c *Controller) Add(ctx context.Context, fields map[string]any, asset *AssetRef) (Item, error) {
	normalized, err := c.schema.ValidateCreate(fields)
	if err != nil {
		return Item{}, err
	}
	if err := c.checkAsset(asset); err != nil {
		return Item{}, err
	}

	release, err := c.beginMutation(ctx)
	if err != nil {
		return Item{}, err
	}
	defer release()

	if err := c.ensureLoaded(ctx); err != nil {
		return Item{}, err
	}

	c.mu.Lock()
	order := len(c.items)
	owner := ""
	if asset != nil {
		owner = c.assetOwner(asset.StoragePath)
	}
	c.mu.Unlock()
	if owner != "" {
		return Item{}, fmt.Errorf("%s held by %s: %w", asset.StoragePath, owner, ErrAssetInUse)
	}

	id, err := c.store.Create(ctx, c.schema.Key, normalized, asset.clone(), order)
	if err != nil {
		c.logger.Error("create failed", zap.Int("order", order), zap.Error(err))
		return Item{}, fmt.Errorf("create item: %w", err)
	}

	now := time.Now().UTC()
	item := Item{
		ID:        id,
		Order:     order,
		Fields:    normalized,
		Asset:     asset.clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.mu.Lock()
	c.items = append(c.items, item.clone())
	c.mu.Unlock()
	c.assets.adopt(id, asset)

	c.logger.Info("item added", zap.String("item", id), zap.Int("order", order))
	return item, nil
}

// Update applies the change locally first, then writes it through. A failed
// write is reported but not rolled back; resubmitting the same change is safe.
func (c *Controller) Update(ctx context.Context, id string, change Change) (Item, error) {
	normalized, err := c.schema.ValidatePatch(change.Fields)
	if err != nil {
		return Item{}, err
	}
	if change.Asset != nil && change.ClearAsset {
		return Item{}, &ValidationError{Field: "asset", Message: "cannot set and clear the asset at once"}
	}
	if err := c.checkAsset(change.Asset); err != nil {
		return Item{}, err
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return Item{}, err
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return Item{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if change.Asset != nil {
		if owner := c.assetOwner(change.Asset.StoragePath); owner != "" && owner != id {
			c.mu.Unlock()
			return Item{}, fmt.Errorf("%s held by %s: %w", change.Asset.StoragePath, owner, ErrAssetInUse)
		}
	}
	previous := c.items[idx].Asset.clone()
	target := &c.items[idx]
	if target.Fields == nil {
		target.Fields = map[string]any{}
	}
	for name, value := range normalized {
		if value == nil {
			delete(target.Fields, name)
			continue
		}
		target.Fields[name] = value
	}
	switch {
	case change.ClearAsset:
		target.Asset = nil
	case change.Asset != nil:
		target.Asset = change.Asset.clone()
	}
	target.UpdatedAt = time.Now().UTC()
	updated := target.clone()
	c.mu.Unlock()

	patch := Patch{Fields: normalized, Asset: change.Asset.clone(), ClearAsset: change.ClearAsset}
	if err := c.store.Update(ctx, c.schema.Key, id, patch); err != nil {
		c.logger.Error("update failed", zap.String("item", id), zap.Error(err))
		return Item{}, fmt.Errorf("update %s: %w", id, err)
	}

	swapped := change.Asset != nil && (previous == nil || previous.StoragePath != change.Asset.StoragePath)
	switch {
	case previous.Valid() && change.ClearAsset:
		_ = c.assets.Release(ctx, id, previous)
	case previous.Valid() && swapped:
		_ = c.assets.transition(id, Replacing)
		_ = c.assets.remove(ctx, previous.StoragePath)
		c.assets.adopt(id, change.Asset)
	case swapped:
		c.assets.adopt(id, change.Asset)
	}
	return updated, nil
}

// Remove deletes the item's blob (best effort) and then the record, and
// closes the gap it leaves in the order sequence.
func (c *Controller) Remove(ctx context.Context, id string) error {
	release, err := c.beginMutation(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	item := c.items[idx].clone()
	c.mu.Unlock()

	if item.Asset.Valid() {
		_ = c.assets.Release(ctx, id, item.Asset)
	}
	if err := c.store.Delete(ctx, c.schema.Key, id); err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Error("delete failed", zap.String("item", id), zap.Error(err))
		return fmt.Errorf("remove %s: %w", id, err)
	}

	c.mu.Lock()
	remaining := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.ID != id {
			remaining = append(remaining, it)
		}
	}
	before := cloneItems(remaining)
	Renumber(remaining)
	c.items = remaining
	after := cloneItems(remaining)
	c.mu.Unlock()
	c.logger.Info("item removed", zap.String("item", id))

	if err := c.engine.Apply(ctx, c.schema.Key, before, after); err != nil {
		reorderErr := c.recover(ctx, err)
		reorderErr.Removed = id
		return reorderErr
	}
	return nil
}

// Reorder moves the item at source to destination. The new order is visible
// immediately; if any order write fails the list is refetched from the store
// and a *ReorderError is returned.
func (c *Controller) Reorder(ctx context.Context, source, destination int) ([]Item, error) {
	release, err := c.beginMutation(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	n := len(c.items)
	if source < 0 || source >= n || destination < 0 || destination >= n {
		c.mu.Unlock()
		return nil, fmt.Errorf("reorder %d -> %d of %d: %w", source, destination, n, ErrIndexOutOfRange)
	}
	if source == destination || n < 2 {
		items := cloneItems(c.items)
		c.mu.Unlock()
		return items, nil
	}
	before := cloneItems(c.items)
	moved, err := Move(c.items, source, destination)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.items = moved
	after := cloneItems(moved)
	c.mu.Unlock()

	c.logger.Debug("reorder", zap.Int("source", source), zap.Int("destination", destination))
	if err := c.engine.Apply(ctx, c.schema.Key, before, after); err != nil {
		return nil, c.recover(ctx, err)
	}
	return after, nil
}

// recover discards optimistic order state by refetching from the store.
func (c *Controller) recover(ctx context.Context, cause error) *ReorderError {
	var failed []string
	var persistErr *PersistError
	if errors.As(cause, &persistErr) {
		failed = persistErr.Failed
		if persistErr.RevertErr != nil {
			c.logger.Error("restoring previous order failed", zap.Error(persistErr.RevertErr))
		}
	}
	c.logger.Error("order writes failed, refetching", zap.Strings("failed", failed), zap.Error(cause))

	items, loadErr := c.Load(ctx)
	if loadErr != nil {
		c.mu.Lock()
		c.items = nil
		c.loaded = false
		c.mu.Unlock()
	}
	return &ReorderError{Failed: failed, Cause: cause, RefetchErr: loadErr, Items: items}
}

// Stage uploads a file for the form ahead of Add or Update.
func (c *Controller) Stage(ctx context.Context, up Upload) (AssetRef, error) {
	if !c.schema.AllowAsset {
		return AssetRef{}, &ValidationError{Field: "file", Message: "this collection does not take uploads"}
	}
	return c.assets.Stage(ctx, up)
}

// Discard deletes a staged upload that will not be saved.
func (c *Controller) Discard(ctx context.Context, ref AssetRef) error {
	return c.assets.Discard(ctx, ref)
}

// ReplaceAsset uploads a new file for an existing item. The old blob is only
// deleted after the new one is stored and the record points at it; a failed
// upload leaves the item untouched.
func (c *Controller) ReplaceAsset(ctx context.Context, id string, up Upload) (Item, error) {
	if !c.schema.AllowAsset {
		return Item{}, &ValidationError{Field: "file", Message: "this collection does not take uploads"}
	}

	release, err := c.beginMutation(ctx)
	if err != nil {
		return Item{}, err
	}
	defer release()

	if err := c.ensureLoaded(ctx); err != nil {
		return Item{}, err
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return Item{}, fmt.Errorf("replace asset %s: %w", id, ErrNotFound)
	}
	previous := c.items[idx].Asset.clone()
	c.mu.Unlock()

	pending, settled := Uploading, NoAsset
	if previous.Valid() {
		pending, settled = Replacing, Attached
	}
	if err := c.assets.transition(id, pending); err != nil {
		return Item{}, err
	}

	ref, err := c.assets.put(ctx, up)
	if err != nil {
		_ = c.assets.transition(id, settled)
		c.logger.Warn("replacement upload failed", zap.String("item", id), zap.Error(err))
		return Item{}, err
	}

	if err := c.store.Update(ctx, c.schema.Key, id, Patch{Asset: &ref}); err != nil {
		_ = c.assets.remove(ctx, ref.StoragePath)
		_ = c.assets.transition(id, settled)
		c.logger.Error("attach replacement failed", zap.String("item", id), zap.Error(err))
		return Item{}, fmt.Errorf("replace asset %s: %w", id, err)
	}

	c.mu.Lock()
	var updated Item
	if idx = c.indexOf(id); idx >= 0 {
		c.items[idx].Asset = &ref
		c.items[idx].UpdatedAt = time.Now().UTC()
		updated = c.items[idx].clone()
	}
	c.mu.Unlock()
	_ = c.assets.transition(id, Attached)

	if previous.Valid() && previous.StoragePath != ref.StoragePath {
		_ = c.assets.remove(ctx, previous.StoragePath)
	}
	return updated, nil
}
