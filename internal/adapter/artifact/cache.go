// Package artifact downloads advisory artifacts into an on-disk cache.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// Cache stores structured artifacts under <dir>/stix/<id>.json and documents
// under <dir>/pdfs/<id>.pdf. A file already on disk is reused without a fetch.
type Cache struct {
	dir     string
	fetcher ports.Fetcher
	logger  *zap.Logger
}

// NewCache returns a cache rooted at dir. An empty dir disables caching and
// every Load goes to the network.
func NewCache(dir string, fetcher ports.Fetcher, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{dir: dir, fetcher: fetcher, logger: logger}
}

// Path returns where the artifact for (advisoryID, source) is stored.
func (c *Cache) Path(advisoryID string, source domain.Source) string {
	switch source {
	case domain.SourceStructured:
		return filepath.Join(c.dir, "stix", advisoryID+".json")
	default:
		return filepath.Join(c.dir, "pdfs", advisoryID+".pdf")
	}
}

// Load returns the artifact bytes, reading the cached copy when present.
func (c *Cache) Load(ctx context.Context, advisoryID string, source domain.Source, url string) ([]byte, error) {
	if c.dir == "" {
		return c.fetcher.Fetch(ctx, url)
	}

	path := c.Path(advisoryID, source)
	data, err := os.ReadFile(path)
	if err == nil {
		c.logger.Debug("Using cached artifact", zap.String("path", path))
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read cached artifact: %w", err)
	}

	data, err = c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, data); err != nil {
		// The bytes are still usable for this run
		c.logger.Warn("Failed to cache artifact", zap.String("path", path), zap.Error(err))
	}
	return data, nil
}

// writeFile writes through a temp file so a crash never leaves a truncated artifact behind.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
