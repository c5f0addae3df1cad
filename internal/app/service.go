package app

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"siteadmin/api/internal/collection"
	"siteadmin/api/internal/config"
)

type recordStore interface {
	collection.RecordStore
	CollectionCounts(context.Context) (map[string]int, error)
	Ping(ctx context.Context) error
}

// ReadyCheck reports whether a dependency can serve requests.
type ReadyCheck func(ctx context.Context) error

type Service struct {
	cfg      config.Config
	records  recordStore
	registry *collection.Registry
	logger   *zap.Logger
	checks   map[string]ReadyCheck
}

func New(cfg config.Config, records recordStore, registry *collection.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		records:  records,
		registry: registry,
		logger:   logger,
		checks:   map[string]ReadyCheck{},
	}
}

// AddReadyCheck registers an extra dependency for /api/ready next to the
// record store.
func (s *Service) AddReadyCheck(name string, check ReadyCheck) {
	s.checks[name] = check
}

// Ready runs every readiness check and returns the failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := map[string]error{"database": s.records.Ping(ctx)}
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	return results
}

func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

func (s *Service) ListCollections(ctx context.Context) (map[string]any, error) {
	counts, err := s.records.CollectionCounts(ctx)
	if err != nil {
		return nil, domainError(http.StatusServiceUnavailable, "LOAD_FAILED", "Collections could not be loaded", nil)
	}
	schemas := s.registry.Schemas()
	collections := make([]map[string]any, 0, len(schemas))
	for _, schema := range schemas {
		collections = append(collections, map[string]any{
			"key":        schema.Key,
			"title":      schema.Title,
			"fields":     schema.Fields,
			"allowAsset": schema.AllowAsset,
			"count":      counts[schema.Key],
		})
	}
	return map[string]any{"collections": collections}, nil
}

// LoadItems refreshes a collection from the store. A failed read never
// returns the previous list.
func (s *Service) LoadItems(ctx context.Context, key string) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	items, err := ctrl.Load(ctx)
	if err != nil {
		return nil, domainError(http.StatusServiceUnavailable, "LOAD_FAILED", "The list could not be loaded", map[string]any{"items": []collection.Item{}})
	}
	return map[string]any{"collection": key, "items": items}, nil
}

func (s *Service) AddItem(ctx context.Context, key string, fields map[string]any, asset *collection.AssetRef) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	item, err := ctrl.Add(ctx, fields, asset)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (s *Service) UpdateItem(ctx context.Context, key, id string, change collection.Change) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	item, err := ctrl.Update(ctx, id, change)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (s *Service) RemoveItem(ctx context.Context, key, id string) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Remove(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "items": ctrl.Items()}, nil
}

func (s *Service) ReorderItems(ctx context.Context, key string, source, destination int) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	items, err := ctrl.Reorder(ctx, source, destination)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": items}, nil
}

func (s *Service) StageUpload(ctx context.Context, key string, upload collection.Upload) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	ref, err := ctrl.Stage(ctx, upload)
	if err != nil {
		return nil, err
	}
	return map[string]any{"asset": ref}, nil
}

func (s *Service) DiscardUpload(ctx context.Context, key string, ref collection.AssetRef) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Discard(ctx, ref); err != nil {
		var validationErr *collection.ValidationError
		if errors.As(err, &validationErr) || errors.Is(err, collection.ErrInvalidAsset) {
			return nil, err
		}
		// Discarding is cleanup; the form can move on either way.
		s.logger.Warn("discard staged upload failed", zap.String("collection", key), zap.String("path", ref.StoragePath), zap.Error(err))
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) ReplaceAsset(ctx context.Context, key, id string, upload collection.Upload) (map[string]any, error) {
	ctrl, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	item, err := ctrl.ReplaceAsset(ctx, id, upload)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

// PublicItems is the read-only feed the marketing pages render from. It
// reads the store directly so it never sees an unconfirmed admin edit.
func (s *Service) PublicItems(ctx context.Context, key string) (map[string]any, error) {
	if _, err := s.registry.Get(key); err != nil {
		return nil, err
	}
	items, err := s.records.List(ctx, key)
	if err != nil {
		s.logger.Error("public list failed", zap.String("collection", key), zap.Error(err))
		return nil, domainError(http.StatusServiceUnavailable, "LOAD_FAILED", "Content is temporarily unavailable", nil)
	}
	entries := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := make(map[string]any, len(item.Fields)+2)
		for name, value := range item.Fields {
			entry[name] = value
		}
		entry["id"] = item.ID
		if item.Asset.Valid() {
			entry["imageUrl"] = item.Asset.PublicURL
		}
		entries = append(entries, entry)
	}
	return map[string]any{"collection": key, "items": entries}, nil
}
