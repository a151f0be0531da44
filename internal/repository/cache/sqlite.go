package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteCache struct {
	db     *sql.DB
	logger logger.Logger
}

var _ TileCache = (*SQLiteCache)(nil)

func NewSQLiteCache(path string, l logger.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &SQLiteCache{
		db:     db,
		logger: l,
	}

	err = c.runMigrations()
	if err != nil {
		db.Close()
		return nil, err
	}

	l.Info("sqlite cache initialized", "path", path)

	return c, nil
}

func (c *SQLiteCache) runMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.Up(c.db, "migrations")
}

func (c *SQLiteCache) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	c.logger.Debug("sqlite cache get", "key", k.String())

	query := `SELECT data, fetched_at, expires_at
	FROM cache_entries
	WHERE cache_key = ?`

	var (
		data      []byte
		fetchedAt int64
		expiresAt sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, query, k.String()).Scan(&data, &fetchedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TileCacheValue{}, false, nil
		}
		c.logger.Error("sqlite cache get failed", "key", k.String(), "error", err)
		return TileCacheValue{}, false, err
	}

	v := TileCacheValue{
		Data:      data,
		FetchedAt: time.UnixMilli(fetchedAt),
	}
	if expiresAt.Valid {
		v.ExpiresAt = time.UnixMilli(expiresAt.Int64)
	}
	return v, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error {
	c.logger.Debug("sqlite cache set", "key", k.String(), "size", len(v.Data))

	query := `INSERT INTO cache_entries (cache_key, kind, scope, source_id, data, fetched_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		data = excluded.data,
		fetched_at = excluded.fetched_at,
		expires_at = excluded.expires_at`

	var expiresAt sql.NullInt64
	if !v.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: v.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, query,
		k.String(), string(k.Kind), k.Scope, k.SourceID, v.Data, v.FetchedAt.UnixMilli(), expiresAt)
	if err != nil {
		c.logger.Error("sqlite cache set failed", "key", k.String(), "error", err)
		return err
	}

	return nil
}

func (c *SQLiteCache) DeleteSource(ctx context.Context, scope, sourceID string) error {
	query := `DELETE FROM cache_entries WHERE kind = ? AND scope = ? AND source_id = ?`

	res, err := c.db.ExecContext(ctx, query, string(KindTile), scope, sourceID)
	if err != nil {
		c.logger.Error("sqlite cache delete failed", "scope", scope, "source", sourceID, "error", err)
		return err
	}

	n, _ := res.RowsAffected()
	c.logger.Debug("sqlite cache source deleted", "scope", scope, "source", sourceID, "rows", n)
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
