package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/labreports/internal/async"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// Batch fans documents out to the workflow through a worker queue.
type Batch struct {
	submit Submitter
	logger *slog.Logger
	opts   []async.Option
}

func NewBatch(submit Submitter, logger *slog.Logger, opts ...async.Option) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{submit: submit, logger: logger, opts: opts}
}

// SubmitFile runs one document and reports its outcome. The thread id is
// derived from the content unless job.ThreadID is set.
func (b *Batch) SubmitFile(ctx context.Context, job async.Job) FileResult {
	res := FileResult{Path: job.Path, ThreadID: job.ThreadID}
	if res.ThreadID == "" {
		id, err := ThreadIDFor(job.PatientID, job.Path)
		if err != nil {
			res.Err = err.Error()
			return res
		}
		res.ThreadID = id
	}

	resp, err := b.submit.Submit(ctx, workflow.SubmitRequest{
		ThreadID:  res.ThreadID,
		Path:      job.Path,
		PatientID: job.PatientID,
		ClinicID:  job.ClinicID,
		Gender:    job.Gender,
	})
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Code == workflow.CodeWorkflowExists:
		res.Skipped = true
		res.Message = appErr.Message
		return res
	case err != nil:
		res.Err = err.Error()
		return res
	}

	res.Status = resp.Status
	res.Message = resp.Message
	if resp.ReportID != nil {
		res.ReportID = resp.ReportID.String()
	}
	return res
}

// SubmitDirectory walks root and submits every supported file. Hidden files
// and directories are skipped when skipHidden is set. Results are sorted by
// path.
func (b *Batch) SubmitDirectory(ctx context.Context, t Target, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("INVALID_ARGUMENT", "root path is required", common.ErrInvalidInput)
	}
	start := time.Now()

	var (
		mu      sync.Mutex
		results []FileResult
		stats   DirStats
	)
	record := func(r FileResult) {
		mu.Lock()
		results = append(results, r)
		stats.add(r)
		mu.Unlock()
	}

	q := async.NewWorkerQueue(func(ctx context.Context, job async.Job) error {
		r := b.SubmitFile(ctx, job)
		record(r)
		if r.Err != "" {
			return errors.New(r.Err)
		}
		return nil
	}, b.logger, b.opts...)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			mu.Lock()
			stats.Scanned++
			mu.Unlock()
			record(FileResult{Path: path, Err: err.Error()})
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		mu.Lock()
		stats.Scanned++
		mu.Unlock()
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		mu.Lock()
		stats.Matched++
		mu.Unlock()
		return q.Enqueue(ctx, async.Job{Path: path, PatientID: t.PatientID, ClinicID: t.ClinicID, Gender: t.Gender})
	})

	q.Shutdown(context.WithoutCancel(ctx))

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	b.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"completed", stats.Completed,
		"waiting", stats.Waiting,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if walkErr != nil {
		return results, stats, fmt.Errorf("walk: %w", walkErr)
	}
	return results, stats, nil
}
