package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

// CheckpointRepository stores workflow checkpoints in the workflow_checkpoints
// table so suspended workflows survive restarts.
type CheckpointRepository struct {
	db     *DB
	logger *slog.Logger
}

var _ workflow.CheckpointStore = (*CheckpointRepository)(nil)

func NewCheckpointRepository(db *DB, logger *slog.Logger) *CheckpointRepository {
	return &CheckpointRepository{db: db, logger: logger}
}

func (r *CheckpointRepository) Get(ctx context.Context, threadID string) (*workflow.State, error) {
	b := r.db.builder()
	q, args := b.Select("state").From(b.Table(CheckpointsTable.Name)).
		Where(entsql.EQ("thread_id", threadID)).
		Limit(1).
		Query()
	var raw []byte
	err := r.db.SQL().QueryRowContext(ctx, q, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", threadID, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to load checkpoint", "thread_id", threadID, "error", err)
		return nil, fmt.Errorf("%w: load checkpoint: %v", common.ErrPersistenceFailure, err)
	}
	var s workflow.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &s, nil
}

func (r *CheckpointRepository) Put(ctx context.Context, s *workflow.State) error {
	err := validateRow(CheckpointsTable.Name, checkpointFields, map[string]any{
		"id":            s.ThreadID,
		"status":        string(s.Status),
		"current_state": string(s.Step),
	})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", s.ThreadID, err)
	}
	created, updated := s.CreatedAt, s.UpdatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if updated.IsZero() {
		updated = created
	}
	q, args := r.db.builder().Insert(CheckpointsTable.Name).
		Columns(columnNames(CheckpointsColumns)...).
		Values(s.ThreadID, string(s.Status), string(s.Step), string(raw), created, updated).
		OnConflict(
			entsql.ConflictColumns("thread_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("status")
				u.SetExcluded("current_state")
				u.SetExcluded("state")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, q, args...); err != nil {
		r.logger.Error("failed to save checkpoint", "thread_id", s.ThreadID, "error", err)
		return fmt.Errorf("%w: save checkpoint: %v", common.ErrPersistenceFailure, err)
	}
	return nil
}

func (r *CheckpointRepository) Delete(ctx context.Context, threadID string) error {
	q, args := r.db.builder().Delete(CheckpointsTable.Name).
		Where(entsql.EQ("thread_id", threadID)).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("%w: delete checkpoint: %v", common.ErrPersistenceFailure, err)
	}
	return nil
}

func (r *CheckpointRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	q, args := r.db.builder().Delete(CheckpointsTable.Name).
		Where(entsql.LT("updated_at", cutoff)).
		Query()
	res, err := r.db.SQL().ExecContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to purge checkpoints", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("%w: purge checkpoints: %v", common.ErrPersistenceFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("expired checkpoints purged", "count", n, "cutoff", cutoff)
	}
	return int(n), nil
}
