// Package ingest submits every supported document under a directory, or every
// document dropped into a watched directory, to the extraction workflow.
package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// Submitter starts a workflow. *workflow.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req workflow.SubmitRequest) (*workflow.Response, error)
}

// Target names the patient every ingested file belongs to.
type Target struct {
	PatientID uuid.UUID
	ClinicID  uuid.UUID
	Gender    constants.Gender
}

// FileResult is the per-file outcome.
type FileResult struct {
	Path     string                   `json:"path"`
	ThreadID string                   `json:"thread_id"`
	Status   constants.WorkflowStatus `json:"status,omitempty"`
	ReportID string                   `json:"report_id,omitempty"`
	Message  string                   `json:"message,omitempty"`
	Skipped  bool                     `json:"skipped,omitempty"` // thread already submitted
	Err      string                   `json:"error,omitempty"`
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned   uint32 `json:"scanned"`
	Matched   uint32 `json:"matched"`
	Completed uint32 `json:"completed"`
	Waiting   uint32 `json:"waiting"`
	Skipped   uint32 `json:"skipped"`
	Failed    uint32 `json:"failed"`
}

func (s *DirStats) add(r FileResult) {
	switch {
	case r.Skipped:
		s.Skipped++
	case r.Err != "" || r.Status == constants.StatusFailed:
		s.Failed++
	case r.Status.Suspended():
		s.Waiting++
	case r.Status == constants.StatusCompleted:
		s.Completed++
	}
}
