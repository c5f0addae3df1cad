// Package collection maintains user-ordered lists of content records (team
// members, partner logos, grant milestones and the like) that may each carry
// one uploaded image.
//
// A Controller mirrors one collection of the backing RecordStore in memory.
// Reorders are applied optimistically and persisted as one order write per
// moved item; when any of those writes fails the controller refetches the
// collection instead of guessing which writes landed.
package collection

import (
	"context"
	"io"
	"maps"
	"time"
)

// AssetRef points at an uploaded blob. Both fields are set or the ref is nil.
type AssetRef struct {
	PublicURL   string `json:"publicUrl"`
	StoragePath string `json:"storagePath"`
}

// Valid reports whether the ref carries both a renderable URL and a deletable path.
func (r *AssetRef) Valid() bool {
	return r != nil && r.PublicURL != "" && r.StoragePath != ""
}

func (r *AssetRef) clone() *AssetRef {
	if r == nil {
		return nil
	}
	copied := *r
	return &copied
}

type Item struct {
	ID        string         `json:"id"`
	Order     int            `json:"order"`
	Fields    map[string]any `json:"fields"`
	Asset     *AssetRef      `json:"asset,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (it Item) clone() Item {
	out := it
	out.Fields = maps.Clone(it.Fields)
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	out.Asset = it.Asset.clone()
	return out
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].clone()
	}
	return out
}

// Patch is a partial update. Nil Fields and nil Order leave those untouched.
// Asset replaces the stored ref; ClearAsset removes it.
type Patch struct {
	Fields     map[string]any
	Order      *int
	Asset      *AssetRef
	ClearAsset bool
}

// OrderPatch returns a patch that touches only the order field.
func OrderPatch(order int) Patch {
	return Patch{Order: &order}
}

// RecordStore is the authoritative store for collection items.
type RecordStore interface {
	// List returns every item of the collection sorted by order ascending.
	List(ctx context.Context, collectionKey string) ([]Item, error)
	Create(ctx context.Context, collectionKey string, fields map[string]any, asset *AssetRef, order int) (string, error)
	Update(ctx context.Context, collectionKey, id string, patch Patch) error
	Delete(ctx context.Context, collectionKey, id string) error
}

// BlobStore holds uploaded media addressed by bucket and path.
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) (string, error)
	PublicURL(bucket, path string) string
	Delete(ctx context.Context, bucket, path string) error
}

// Locker serialises structural mutations of a collection. Acquire fails with
// ErrBusy when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
