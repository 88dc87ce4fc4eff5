package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job asks for one document to be run through the extraction workflow.
type Job struct {
	ThreadID    string
	Path        string
	PatientID   uuid.UUID
	ClinicID    uuid.UUID
	Gender      constants.Gender
	SubmittedAt time.Time
}

// Handler processes one job. Errors are logged by the queue.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
