// Package archive persists raw fetched HTML so pages can be reprocessed
// without refetching. Providers: Google Cloud Storage, local filesystem, and
// a no-op for deployments that do not keep raw pages.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/hash/sha256"
)

// Provider stores one raw page per call.
type Provider interface {
	Archive(ctx context.Context, url string, html []byte) error
	Close() error
}

// New builds the provider selected by configuration.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "gcs":
		logger.Info("archiving raw pages to gcs", zap.String("bucket", cfg.GCSBucket))
		return NewGCS(ctx, cfg.GCSBucket, cfg.Prefix)
	case "fs":
		logger.Info("archiving raw pages to disk", zap.String("dir", cfg.LocalDir))
		return NewFS(cfg.LocalDir)
	case "", "noop":
		logger.Debug("raw page archiving disabled")
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}

// objectName derives a stable object key from the page URL and fetch date.
// The same page archived on the same day overwrites its earlier copy.
func objectName(prefix, url string, now time.Time) string {
	hasher := sha256.New()
	key := fmt.Sprintf("%s/%s.html", now.Format("2006-01-02"), hasher.Hash([]byte(url))[:16])
	if prefix != "" {
		return prefix + "/" + key
	}
	return key
}

// GCS archives pages to a Cloud Storage bucket. Authentication uses
// Application Default Credentials.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS creates the client and verifies bucket access so misconfiguration
// fails at startup.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %q attrs: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// Archive uploads one page.
func (g *GCS) Archive(ctx context.Context, url string, html []byte) error {
	name := objectName(g.prefix, url, time.Now().UTC())
	wc := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	wc.ContentType = "text/html"
	if _, err := wc.Write(html); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs object %s: %w", name, err)
	}
	return nil
}

// Close releases the GCS client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// FS archives pages under a local directory, one file per page keyed like the
// GCS provider.
type FS struct {
	dir string
}

// NewFS ensures the directory exists.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return &FS{dir: dir}, nil
}

// Archive writes one page to disk.
func (f *FS) Archive(_ context.Context, url string, html []byte) error {
	name := filepath.Join(f.dir, filepath.FromSlash(objectName("", url, time.Now().UTC())))
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create archive subdir: %w", err)
	}
	if err := os.WriteFile(name, html, 0o644); err != nil {
		return fmt.Errorf("write archive file %s: %w", name, err)
	}
	return nil
}

// Close implements Provider.
func (f *FS) Close() error {
	return nil
}

// Noop discards pages.
type Noop struct{}

// Archive implements Provider.
func (Noop) Archive(context.Context, string, []byte) error {
	return nil
}

// Close implements Provider.
func (Noop) Close() error {
	return nil
}
