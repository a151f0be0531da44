package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FilesystemCache stores one JSON file per entry.
// Tiles:    {dir}/{scope}/tiles/{source}/{z}/{x}_{y}.json
// TileJSON: {dir}/{scope}/tilejson/{sha256(url)}.json
type FilesystemCache struct {
	mu  sync.RWMutex
	dir string
}

type fileEntry struct {
	Data      []byte    `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

var _ TileCache = (*FilesystemCache)(nil)

func NewFilesystemCache(dir string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FilesystemCache{
		dir: dir,
	}, nil
}

func (c *FilesystemCache) sourceDir(scope, sourceID string) string {
	return filepath.Join(c.dir, url.PathEscape(scope), "tiles", url.PathEscape(sourceID))
}

func (c *FilesystemCache) keyToPath(k TileCacheKey) string {
	if k.Kind == KindTileJSON {
		sum := sha256.Sum256([]byte(k.URL))
		return filepath.Join(c.dir, url.PathEscape(k.Scope), "tilejson", hex.EncodeToString(sum[:])+".json")
	}
	return filepath.Join(c.sourceDir(k.Scope, k.SourceID), fmt.Sprintf("%d", k.Z), fmt.Sprintf("%d_%d.json", k.X, k.Y))
}

func (c *FilesystemCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	content, err := os.ReadFile(c.keyToPath(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TileCacheValue{}, false, nil
		}
		return TileCacheValue{}, false, err
	}

	var e fileEntry
	if err := json.Unmarshal(content, &e); err != nil {
		return TileCacheValue{}, false, fmt.Errorf("corrupt cache file for %s: %w", k, err)
	}

	return TileCacheValue{Data: e.Data, FetchedAt: e.FetchedAt, ExpiresAt: e.ExpiresAt}, true, nil
}

func (c *FilesystemCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	content, err := json.Marshal(fileEntry{Data: v.Data, FetchedAt: v.FetchedAt, ExpiresAt: v.ExpiresAt})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.keyToPath(k)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0644); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return nil
}

func (c *FilesystemCache) DeleteSource(_ context.Context, scope, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return os.RemoveAll(c.sourceDir(scope, sourceID))
}

func (c *FilesystemCache) Close() error {
	return nil
}
