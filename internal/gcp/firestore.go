// Package gcp holds the Google Cloud backed adapters: Firestore checkpoints and
// Cloud Storage objects.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// NewFirestoreClient creates a Firestore client for the given project.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// checkpointDoc is the Firestore document layout. The workflow state is kept as
// a JSON string so its shape stays identical to the SQL backend.
type checkpointDoc struct {
	ThreadID     string    `firestore:"thread_id"`
	Status       string    `firestore:"status"`
	CurrentState string    `firestore:"current_state"`
	State        string    `firestore:"state"`
	CreatedAt    time.Time `firestore:"created_at"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// CheckpointStore keeps workflow checkpoints in a Firestore collection, one
// document per thread id.
type CheckpointStore struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

var _ workflow.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(client *firestore.Client, collection string, logger *slog.Logger) *CheckpointStore {
	return &CheckpointStore{client: client, collection: collection, logger: logger}
}

func (s *CheckpointStore) doc(threadID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(threadID)
}

func (s *CheckpointStore) Get(ctx context.Context, threadID string) (*workflow.State, error) {
	snap, err := s.doc(threadID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("checkpoint %s: %w", threadID, common.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("firestore.checkpoint.get.failed", "thread_id", threadID, "error", err)
		return nil, fmt.Errorf("%w: load checkpoint: %v", common.ErrPersistenceFailure, err)
	}
	var d checkpointDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	var st workflow.State
	if err := json.Unmarshal([]byte(d.State), &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &st, nil
}

func (s *CheckpointStore) Put(ctx context.Context, st *workflow.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", st.ThreadID, err)
	}
	d := checkpointDoc{
		ThreadID:     st.ThreadID,
		Status:       string(st.Status),
		CurrentState: string(st.Step),
		State:        string(raw),
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
	}
	if _, err := s.doc(st.ThreadID).Set(ctx, d); err != nil {
		s.logger.Error("firestore.checkpoint.put.failed", "thread_id", st.ThreadID, "error", err)
		return fmt.Errorf("%w: save checkpoint: %v", common.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *CheckpointStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.doc(threadID).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: delete checkpoint: %v", common.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *CheckpointStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	snaps, err := s.client.Collection(s.collection).Where("updated_at", "<", cutoff).Documents(ctx).GetAll()
	if err != nil {
		s.logger.Error("firestore.checkpoint.purge.failed", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("%w: purge checkpoints: %v", common.ErrPersistenceFailure, err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("%w: purge checkpoints: %v", common.ErrPersistenceFailure, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	n := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			s.logger.Warn("firestore.checkpoint.purge.partial", "error", err)
			continue
		}
		n++
	}
	s.logger.Info("firestore.checkpoint.purge.ok", "count", n, "cutoff", cutoff)
	return n, nil
}
