// Package archive uploads finished report directories to Google Cloud
// Storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSArchiver copies every file in a report directory into a bucket under
// a per-task prefix.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// Config captures the bucket layout.
type Config struct {
	Bucket string
	// Prefix is prepended to every object path, e.g. "reports".
	Prefix string
}

// NewGCSArchiver constructs the archiver on an existing client.
func NewGCSArchiver(client *storage.Client, cfg Config, logger *zap.Logger) (*GCSArchiver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSArchiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// ArchiveDir uploads every regular file under dir and returns the gs://
// prefix the objects live under.
func (a *GCSArchiver) ArchiveDir(ctx context.Context, taskID, dir string) (string, error) {
	base := path.Join(a.prefix, taskID)
	var uploaded int
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", p, err)
		}
		object := path.Join(base, filepath.ToSlash(rel))
		if err := a.uploadFile(ctx, p, object); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", dir, err)
	}
	a.logger.Info("report archived",
		zap.String("task_id", taskID),
		zap.Int("objects", uploaded),
	)
	return fmt.Sprintf("gs://%s/%s", a.bucket, base), nil
}

func (a *GCSArchiver) uploadFile(ctx context.Context, localPath, object string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", object, err)
	}
	return nil
}
