package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/labreports/internal/common"
)

const gsScheme = "gs://"

// IsGSURI reports whether p names a Cloud Storage object.
func IsGSURI(p string) bool {
	return strings.HasPrefix(p, gsScheme)
}

// ParseGSURI splits gs://bucket/object into its parts.
func ParseGSURI(uri string) (bucket, object string, err error) {
	if !IsGSURI(uri) {
		return "", "", fmt.Errorf("%w: not a gs:// uri: %s", common.ErrInvalidInput, uri)
	}
	rest := strings.TrimPrefix(uri, gsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", fmt.Errorf("%w: gs uri must name an object: %s", common.ErrInvalidInput, uri)
	}
	return bucket, object, nil
}

// ObjectStore moves lab report files between Cloud Storage and local disk.
type ObjectStore struct {
	client *storage.Client
	logger *slog.Logger
}

func NewObjectStore(client *storage.Client, logger *slog.Logger) *ObjectStore {
	return &ObjectStore{client: client, logger: logger}
}

// Download copies the object to destDir and returns the local path. The file
// keeps the object's base name so its extension still selects PDF or image.
func (s *ObjectStore) Download(ctx context.Context, uri, destDir string) (string, error) {
	bucket, object, err := ParseGSURI(uri)
	if err != nil {
		return "", err
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("object %s: %w", uri, common.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("gcs.download.failed", "uri", uri, "error", err)
		return "", fmt.Errorf("open %s: %w", uri, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}
	dst := filepath.Join(destDir, path.Base(object))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		s.logger.Error("gcs.download.failed", "uri", uri, "error", err)
		return "", fmt.Errorf("download %s: %w", uri, err)
	}
	s.logger.Info("gcs.download.ok", "uri", uri, "path", dst, "bytes", n)
	return dst, nil
}

// UploadOnce writes content to bucket/object only if the object does not exist
// yet. An existing object is not an error; the returned uri points at it.
func (s *ObjectStore) UploadOnce(ctx context.Context, bucket, object, contentType string, content io.Reader) (string, error) {
	uri := gsScheme + bucket + "/" + object
	w := s.client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return uri, s.uploadErr(uri, err)
	}
	if err := w.Close(); err != nil {
		return uri, s.uploadErr(uri, err)
	}
	s.logger.Info("gcs.upload.ok", "uri", uri)
	return uri, nil
}

func (s *ObjectStore) uploadErr(uri string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		s.logger.Info("gcs.upload.skipped", "uri", uri, "reason", "object exists")
		return nil
	}
	s.logger.Error("gcs.upload.failed", "uri", uri, "error", err)
	return fmt.Errorf("failed to write to GCS: %w", err)
}
