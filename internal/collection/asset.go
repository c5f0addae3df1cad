package collection

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"siteadmin/api/internal/blob"
)

type AssetState int

const (
	NoAsset AssetState = iota
	Uploading
	Attached
	Replacing
	Deleting
)

func (s AssetState) String() string {
	switch s {
	case NoAsset:
		return "no_asset"
	case Uploading:
		return "uploading"
	case Attached:
		return "attached"
	case Replacing:
		return "replacing"
	case Deleting:
		return "deleting"
	default:
		return fmt.Sprintf("asset_state(%d)", int(s))
	}
}

var assetTransitions = map[AssetState][]AssetState{
	NoAsset:   {Uploading, Attached},
	Uploading: {Attached, NoAsset},
	Attached:  {Replacing, Deleting},
	Replacing: {Attached},
	Deleting:  {NoAsset},
}

func canTransition(from, to AssetState) bool {
	for _, next := range assetTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var allowedContentTypes = map[string]struct{}{
	"image/png":     {},
	"image/jpeg":    {},
	"image/webp":    {},
	"image/gif":     {},
	"image/svg+xml": {},
	"image/avif":    {},
}

// Upload is a file picked in the admin form.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Assets keeps item asset refs and stored blobs in step for one collection.
type Assets struct {
	blobs         BlobStore
	collectionKey string
	bucket        string
	prefix        string
	maxBytes      int64
	logger        *zap.Logger

	mu     sync.Mutex
	states map[string]AssetState
}

func NewAssets(blobs BlobStore, schema Schema, maxBytes int64, logger *zap.Logger) *Assets {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assets{
		blobs:         blobs,
		collectionKey: schema.Key,
		bucket:        schema.AssetBucket,
		prefix:        schema.AssetPrefix,
		maxBytes:      maxBytes,
		logger:        logger.With(zap.String("collection", schema.Key)),
		states:        make(map[string]AssetState),
	}
}

// State reports the lifecycle state tracked under key (an item id or a
// staged storage path).
func (a *Assets) State(key string) AssetState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[key]
}

func (a *Assets) transition(key string, to AssetState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	from := a.states[key]
	if from == to {
		return nil
	}
	if !canTransition(from, to) {
		return fmt.Errorf("asset %s: cannot go from %s to %s", key, from, to)
	}
	if to == NoAsset {
		delete(a.states, key)
		return nil
	}
	a.states[key] = to
	return nil
}

// reset forces the tracked state, used when the item list is reloaded.
func (a *Assets) reset(items []Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, state := range a.states {
		if strings.HasPrefix(key, stagedPrefix) && state == Attached {
			continue
		}
		delete(a.states, key)
	}
	for _, it := range items {
		if it.Asset.Valid() {
			a.states[it.ID] = Attached
		}
	}
}

func (a *Assets) forget(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, key)
}

const stagedPrefix = "staged:"

func (a *Assets) validate(up Upload) error {
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(up.ContentType, ";")[0]))
	if _, ok := allowedContentTypes[contentType]; !ok {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("content type %q is not allowed", up.ContentType)}
	}
	if up.Size <= 0 {
		return &ValidationError{Field: "file", Message: "file is empty"}
	}
	if a.maxBytes > 0 && up.Size > a.maxBytes {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("file exceeds %d bytes", a.maxBytes)}
	}
	if up.Body == nil {
		return &ValidationError{Field: "file", Message: "file body is missing"}
	}
	return nil
}

func (a *Assets) put(ctx context.Context, up Upload) (AssetRef, error) {
	if err := a.validate(up); err != nil {
		return AssetRef{}, err
	}
	path := blob.ObjectPath(a.prefix, a.collectionKey, up.Filename)
	url, err := a.blobs.Upload(ctx, a.bucket, path, io.LimitReader(up.Body, up.Size), up.Size, up.ContentType)
	if err != nil {
		return AssetRef{}, fmt.Errorf("%w: %s: %w", ErrUpload, path, err)
	}
	if url == "" {
		url = a.blobs.PublicURL(a.bucket, path)
	}
	return AssetRef{PublicURL: url, StoragePath: path}, nil
}

// Stage uploads a file right away so the form can preview it before the
// record is saved.
func (a *Assets) Stage(ctx context.Context, up Upload) (AssetRef, error) {
	ref, err := a.put(ctx, up)
	if err != nil {
		a.logger.Warn("staged upload failed", zap.String("filename", up.Filename), zap.Error(err))
		return AssetRef{}, err
	}
	a.mu.Lock()
	a.states[stagedPrefix+ref.StoragePath] = Attached
	a.mu.Unlock()
	a.logger.Info("asset staged", zap.String("path", ref.StoragePath))
	return ref, nil
}

// Discard removes a staged upload the form abandoned.
func (a *Assets) Discard(ctx context.Context, ref AssetRef) error {
	if !ref.Valid() {
		return ErrInvalidAsset
	}
	if !a.owns(ref.StoragePath) {
		return &ValidationError{Field: "storagePath", Message: "path does not belong to this collection"}
	}
	a.forget(stagedPrefix + ref.StoragePath)
	return a.remove(ctx, ref.StoragePath)
}

// adopt moves a staged upload onto a saved item.
func (a *Assets) adopt(itemID string, ref *AssetRef) {
	if !ref.Valid() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, stagedPrefix+ref.StoragePath)
	a.states[itemID] = Attached
}

// Release deletes the blob of an item that is going away. Failures are
// logged and returned but never block the caller.
func (a *Assets) Release(ctx context.Context, itemID string, ref *AssetRef) error {
	if !ref.Valid() {
		a.forget(itemID)
		return nil
	}
	if err := a.transition(itemID, Deleting); err != nil {
		a.logger.Debug("asset state out of step", zap.String("item", itemID), zap.Error(err))
	}
	err := a.remove(ctx, ref.StoragePath)
	a.forget(itemID)
	return err
}

func (a *Assets) remove(ctx context.Context, path string) error {
	if err := a.blobs.Delete(ctx, a.bucket, path); err != nil {
		a.logger.Warn("best-effort blob delete failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("delete blob %s: %w", path, err)
	}
	return nil
}

func (a *Assets) owns(path string) bool {
	return strings.HasPrefix(path, blob.CollectionDir(a.prefix, a.collectionKey)+"/")
}
