// Package upload stores project briefs attached to MVP funnel
// submissions in object storage.
package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Uploader stores one file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// Default validation policy.
var (
	DefaultMaxSize     int64 = 10 << 20
	DefaultAllowedExts       = []string{".pdf", ".doc", ".docx", ".txt", ".md", ".png", ".jpg", ".jpeg"}
)

// Validate checks a brief against the size and extension policy before
// any bytes are copied to storage.
func Validate(filename string, size int64, maxSize int64, allowedExts []string) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if len(allowedExts) == 0 {
		allowedExts = DefaultAllowedExts
	}
	if size > maxSize {
		return eris.Errorf("upload: file exceeds %d bytes", maxSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExts {
		if ext == allowed {
			return nil
		}
	}
	return eris.Errorf("upload: file type %q not allowed", ext)
}

// GCSUploader writes briefs to a Google Cloud Storage bucket under the
// briefs/ prefix.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCSUploader using ambient credentials.
func NewGCS(ctx context.Context, bucket string) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "upload: create storage client")
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload streams r into a new object named briefs/<uuid><ext> and
// returns its public URL.
func (u *GCSUploader) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	object := ObjectName(filename)

	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", eris.Wrap(err, "upload: write object")
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrap(err, "upload: finalize object")
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, object), nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// ObjectName derives a collision-free object key that keeps the
// original extension.
func ObjectName(filename string) string {
	return "briefs/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}
