package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"

	"siteadmin/api/internal/collection"
	"siteadmin/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) List(ctx context.Context, collectionKey string) ([]collection.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sort_order, fields, asset_url, asset_path, created_at, updated_at
		FROM collection_items
		WHERE collection_key=$1
		ORDER BY sort_order ASC, created_at ASC
	`, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionKey, err)
	}
	defer rows.Close()

	items := make([]collection.Item, 0)
	for rows.Next() {
		var (
			row       itemRow
			rawFields []byte
		)
		if err := rows.Scan(&row.ID, &row.SortOrder, &rawFields, &row.AssetURL, &row.AssetPath, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		row.Fields, err = decodeFields(rawFields)
		if err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", row.ID, err)
		}
		items = append(items, row.item())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Create(ctx context.Context, collectionKey string, fields map[string]any, asset *collection.AssetRef, order int) (string, error) {
	encoded, err := encodeFields(fields)
	if err != nil {
		return "", err
	}
	url, path := assetColumns(asset)
	id := util.NewID("itm")
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collection_items (id, collection_key, sort_order, fields, asset_url, asset_path)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`, id, collectionKey, order, encoded, url, path)
	if err != nil {
		return "", fmt.Errorf("insert item: %w", assetConflict(err))
	}
	return id, nil
}

// Update writes only the parts of the patch that are set. Field values of
// nil remove the field.
func (s *PostgresStore) Update(ctx context.Context, collectionKey, id string, patch collection.Patch) error {
	sets := make([]string, 0, 4)
	args := []any{collectionKey, id}
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(patch.Fields) > 0 {
		encoded, err := encodeFields(patch.Fields)
		if err != nil {
			return err
		}
		sets = append(sets, "fields=jsonb_strip_nulls(fields || "+arg(encoded)+"::jsonb)")
	}
	if patch.Order != nil {
		sets = append(sets, "sort_order="+arg(*patch.Order))
	}
	switch {
	case patch.ClearAsset:
		sets = append(sets, "asset_url=NULL", "asset_path=NULL")
	case patch.Asset != nil:
		if !patch.Asset.Valid() {
			return collection.ErrInvalidAsset
		}
		sets = append(sets, "asset_url="+arg(patch.Asset.PublicURL), "asset_path="+arg(patch.Asset.StoragePath))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=NOW()")

	query := "UPDATE collection_items SET " + strings.Join(sets, ", ") + " WHERE collection_key=$1 AND id=$2"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item %s: %w", id, assetConflict(err))
	}
	return requireRow(result, id)
}

func (s *PostgresStore) Delete(ctx context.Context, collectionKey, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM collection_items WHERE collection_key=$1 AND id=$2`, collectionKey, id)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return requireRow(result, id)
}

// CollectionCounts returns the number of items per collection key.
func (s *PostgresStore) CollectionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection_key, COUNT(*) FROM collection_items GROUP BY collection_key`)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func requireRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, collection.ErrNotFound)
	}
	return nil
}

// assetPathIndex is the partial unique index on collection_items.asset_path.
const assetPathIndex = "collection_items_asset_path_key"

func assetConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == assetPathIndex {
		return fmt.Errorf("%s: %w", pgErr.Detail, collection.ErrAssetInUse)
	}
	return err
}

// decodeFields keeps whole numbers as int64 so integer fields survive a
// round trip through jsonb.
func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	for name, value := range fields {
		fields[name] = numberValue(value)
	}
	return fields, nil
}

func numberValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for k, inner := range v {
			v[k] = numberValue(inner)
		}
	case []any:
		for i, inner := range v {
			v[i] = numberValue(inner)
		}
	}
	return value
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(encoded), nil
}

func assetColumns(asset *collection.AssetRef) (sql.NullString, sql.NullString) {
	if !asset.Valid() {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: asset.PublicURL, Valid: true}, sql.NullString{String: asset.StoragePath, Valid: true}
}
