package cache

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
)

const (
	smallTileSize = 1024      // 1KB
	largeTileSize = 50 * 1024 // 50KB
)

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func setupSQLiteCache(b *testing.B) (*SQLiteCache, func()) {
	b.Helper()
	tmpFile := filepath.Join(b.TempDir(), "test.db")
	cache, err := NewSQLiteCache(tmpFile, logger.NewNoOp())
	if err != nil {
		b.Fatalf("Failed to create SQLite cache: %v", err)
	}
	return cache, func() {
		cache.Close()
	}
}

func setupFilesystemCache(b *testing.B) (*FilesystemCache, func()) {
	b.Helper()
	cache, err := NewFilesystemCache(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create filesystem cache: %v", err)
	}
	return cache, func() {}
}

func benchmarkSet(b *testing.B, c TileCache, size int) {
	ctx := context.Background()
	v := TileCacheValue{Data: generateTileData(size), FetchedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := tileKey("bench", i%20, i%1000, i%1000)
		if err := c.Set(ctx, key, v); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

func benchmarkGet(b *testing.B, c TileCache, size int) {
	ctx := context.Background()
	v := TileCacheValue{Data: generateTileData(size), FetchedAt: time.Now()}
	for i := 0; i < 1000; i++ {
		if err := c.Set(ctx, tileKey("bench", i%20, i, i), v); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := i % 1000
		if _, _, err := c.Get(ctx, tileKey("bench", n%20, n, n)); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

func BenchmarkSet_Memory_Small(b *testing.B) {
	benchmarkSet(b, NewMemoryCache(4096, nil), smallTileSize)
}

func BenchmarkSet_SQLite_Small(b *testing.B) {
	cache, cleanup := setupSQLiteCache(b)
	defer cleanup()
	benchmarkSet(b, cache, smallTileSize)
}

func BenchmarkSet_Filesystem_Small(b *testing.B) {
	cache, cleanup := setupFilesystemCache(b)
	defer cleanup()
	benchmarkSet(b, cache, smallTileSize)
}

func BenchmarkGet_Memory_Large(b *testing.B) {
	benchmarkGet(b, NewMemoryCache(4096, nil), largeTileSize)
}

func BenchmarkGet_SQLite_Large(b *testing.B) {
	cache, cleanup := setupSQLiteCache(b)
	defer cleanup()
	benchmarkGet(b, cache, largeTileSize)
}

func BenchmarkGet_Filesystem_Large(b *testing.B) {
	cache, cleanup := setupFilesystemCache(b)
	defer cleanup()
	benchmarkGet(b, cache, largeTileSize)
}
