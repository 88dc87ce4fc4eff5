// Package source turns a caller-supplied document location into a local file
// the workflow can read.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/gcp"
)

// Downloader fetches a remote object into destDir and returns the local path.
type Downloader interface {
	Download(ctx context.Context, uri, destDir string) (string, error)
}

type Resolver struct {
	uploadDir string
	objects   Downloader
	logger    *slog.Logger
}

// NewResolver builds a resolver. objects may be nil, in which case gs:// sources
// are rejected.
func NewResolver(uploadDir string, objects Downloader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{uploadDir: uploadDir, objects: objects, logger: logger}
}

// Resolve validates the extension of loc and returns a local path for it.
// Local paths are made absolute; gs:// objects are downloaded into
// uploadDir/<threadID>. Existence of local files is checked by the workflow.
func (r *Resolver) Resolve(ctx context.Context, threadID, loc string) (string, error) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", common.NewAppError("INVALID_SOURCE", "file path is required", common.ErrInvalidInput)
	}

	if gcp.IsGSURI(loc) {
		_, object, err := gcp.ParseGSURI(loc)
		if err != nil {
			return "", err
		}
		if err := checkExt(path.Ext(object)); err != nil {
			return "", err
		}
		if r.objects == nil {
			return "", common.NewAppError("INVALID_SOURCE", "gs:// sources need Cloud Storage to be configured", common.ErrInvalidInput)
		}
		local, err := r.objects.Download(ctx, loc, filepath.Join(r.uploadDir, threadID))
		if err != nil {
			r.logger.Error("source.download.failed", "thread_id", threadID, "uri", loc, "error", err)
			return "", err
		}
		r.logger.Info("source.download.ok", "thread_id", threadID, "uri", loc, "path", local)
		return local, nil
	}

	if err := checkExt(filepath.Ext(loc)); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(loc)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return abs, nil
}

func checkExt(ext string) error {
	if constants.MapExtToFormat(ext) == "" {
		return common.NewAppError("UNSUPPORTED_FILE",
			fmt.Sprintf("unsupported file type %q; allowed: pdf, png, jpg, jpeg, webp, gif", constants.NormalizeExt(ext)),
			common.ErrInvalidInput)
	}
	return nil
}
