package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"siteadmin/api/internal/collection"
	"siteadmin/api/internal/util"
)

// MemoryStore is an in-process record store. It backs local development
// without a database and the package tests of its callers.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]map[string]collection.Item
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]collection.Item),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) List(_ context.Context, collectionKey string) ([]collection.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]collection.Item, 0, len(s.items[collectionKey]))
	for _, it := range s.items[collectionKey] {
		out = append(out, copyItem(it))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, collectionKey string, fields map[string]any, asset *collection.AssetRef, order int) (string, error) {
	if asset != nil && !asset.Valid() {
		return "", collection.ErrInvalidAsset
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if asset != nil {
		if err := s.checkAssetFree(asset.StoragePath, ""); err != nil {
			return "", err
		}
	}
	id := util.NewID("itm")
	now := s.now()
	item := collection.Item{ID: id, Order: order, Fields: dropNil(fields), CreatedAt: now, UpdatedAt: now}
	if asset != nil {
		copied := *asset
		item.Asset = &copied
	}
	if s.items[collectionKey] == nil {
		s.items[collectionKey] = make(map[string]collection.Item)
	}
	s.items[collectionKey][id] = item
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, collectionKey, id string, patch collection.Patch) error {
	if patch.Asset != nil && !patch.Asset.Valid() {
		return collection.ErrInvalidAsset
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[collectionKey][id]
	if !ok {
		return fmt.Errorf("%s: %w", id, collection.ErrNotFound)
	}
	if patch.Asset != nil && !patch.ClearAsset {
		if err := s.checkAssetFree(patch.Asset.StoragePath, id); err != nil {
			return err
		}
	}
	item.Fields = maps.Clone(item.Fields)
	if item.Fields == nil {
		item.Fields = map[string]any{}
	}
	for name, value := range patch.Fields {
		if value == nil {
			delete(item.Fields, name)
			continue
		}
		item.Fields[name] = value
	}
	if patch.Order != nil {
		item.Order = *patch.Order
	}
	switch {
	case patch.ClearAsset:
		item.Asset = nil
	case patch.Asset != nil:
		copied := *patch.Asset
		item.Asset = &copied
	}
	item.UpdatedAt = s.now()
	s.items[collectionKey][id] = item
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collectionKey, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[collectionKey][id]; !ok {
		return fmt.Errorf("%s: %w", id, collection.ErrNotFound)
	}
	delete(s.items[collectionKey], id)
	return nil
}

func (s *MemoryStore) CollectionCounts(context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.items))
	for key, items := range s.items {
		counts[key] = len(items)
	}
	return counts, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// checkAssetFree mirrors the unique asset_path index. Callers hold s.mu.
func (s *MemoryStore) checkAssetFree(path, self string) error {
	for _, items := range s.items {
		for id, it := range items {
			if id != self && it.Asset != nil && it.Asset.StoragePath == path {
				return fmt.Errorf("%s: %w", path, collection.ErrAssetInUse)
			}
		}
	}
	return nil
}

func copyItem(it collection.Item) collection.Item {
	out := it
	out.Fields = maps.Clone(it.Fields)
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	if it.Asset != nil {
		copied := *it.Asset
		out.Asset = &copied
	}
	return out
}

func dropNil(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		if value != nil {
			out[name] = value
		}
	}
	return out
}
