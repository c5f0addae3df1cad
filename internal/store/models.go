package store

import (
	"database/sql"
	"time"

	"siteadmin/api/internal/collection"
)

type itemRow struct {
	ID        string
	SortOrder int
	Fields    map[string]any
	AssetURL  sql.NullString
	AssetPath sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r itemRow) item() collection.Item {
	item := collection.Item{
		ID:        r.ID,
		Order:     r.SortOrder,
		Fields:    r.Fields,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if item.Fields == nil {
		item.Fields = map[string]any{}
	}
	if r.AssetURL.Valid && r.AssetPath.Valid {
		item.Asset = &collection.AssetRef{PublicURL: r.AssetURL.String, StoragePath: r.AssetPath.String}
	}
	return item
}
