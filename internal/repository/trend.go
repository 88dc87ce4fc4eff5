package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
	"github.com/joseph-ayodele/labreports/internal/trend"
)

// TrendRepository persists biomarker trends. It satisfies trend.Store.
type TrendRepository interface {
	GetTrend(ctx context.Context, patientID uuid.UUID, biomarkerName string) (*entity.BiomarkerTrend, error)
	UpdateTrend(ctx context.Context, patientID uuid.UUID, biomarkerName string, apply trend.ApplyFunc) error
	ListTrends(ctx context.Context, patientID uuid.UUID, category *constants.Category) ([]entity.BiomarkerTrend, error)
}

type trendRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewTrendRepository(db *DB, logger *slog.Logger) TrendRepository {
	return &trendRepo{db: db, logger: logger}
}

func (r *trendRepo) GetTrend(ctx context.Context, patientID uuid.UUID, biomarkerName string) (*entity.BiomarkerTrend, error) {
	b := r.db.builder()
	q, args := b.Select(columnNames(BiomarkerTrendsColumns)...).From(b.Table(BiomarkerTrendsTable.Name)).
		Where(entsql.And(
			entsql.EQ("patient_id", patientID),
			entsql.EQ("biomarker_name", strings.TrimSpace(biomarkerName)),
		)).
		Limit(1).
		Query()
	t, err := scanTrend(r.db.SQL().QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trend %s: %w", biomarkerName, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get trend", "patient_id", patientID, "biomarker", biomarkerName, "error", err)
		return nil, err
	}
	return t, nil
}

// errTrendRaced reports that another writer inserted the pair first.
var errTrendRaced = errors.New("trend inserted concurrently")

const maxTrendAttempts = 3

// UpdateTrend loads the trend under a write lock, hands it to apply and writes
// the result in the same transaction. The row id never changes after the
// first insert.
func (r *trendRepo) UpdateTrend(ctx context.Context, patientID uuid.UUID, biomarkerName string, apply trend.ApplyFunc) error {
	name := strings.TrimSpace(biomarkerName)
	for attempt := 1; ; attempt++ {
		err := r.db.writeTx(ctx, func(q querier) error {
			cur, err := r.lockTrend(ctx, q, patientID, name)
			if err != nil {
				return err
			}
			next, err := apply(cur)
			if err != nil {
				return err
			}
			if cur != nil {
				next.ID = cur.ID
			}
			if err := validateTrend(next); err != nil {
				return err
			}
			if cur == nil {
				return r.insertTrend(ctx, q, next)
			}
			return r.rewriteTrend(ctx, q, next)
		})
		if errors.Is(err, errTrendRaced) && attempt < maxTrendAttempts {
			r.logger.Debug("trend insert raced, retrying", "patient_id", patientID, "biomarker", name, "attempt", attempt)
			continue
		}
		if err != nil {
			r.logger.Error("failed to update trend", "patient_id", patientID, "biomarker", name, "error", err)
			if errors.Is(err, common.ErrValidation) {
				return err
			}
			return fmt.Errorf("%w: update trend: %v", common.ErrPersistenceFailure, err)
		}
		return nil
	}
}

// lockTrend returns the current trend or nil. Postgres takes a row lock;
// SQLite already holds the write lock from writeTx.
func (r *trendRepo) lockTrend(ctx context.Context, q querier, patientID uuid.UUID, name string) (*entity.BiomarkerTrend, error) {
	b := r.db.builder()
	sel := b.Select(columnNames(BiomarkerTrendsColumns)...).From(b.Table(BiomarkerTrendsTable.Name)).
		Where(entsql.And(
			entsql.EQ("patient_id", patientID),
			entsql.EQ("biomarker_name", name),
		)).
		Limit(1)
	if r.db.Dialect() == dialect.Postgres {
		sel = sel.ForUpdate()
	}
	query, args := sel.Query()
	t, err := scanTrend(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *trendRepo) insertTrend(ctx context.Context, q querier, t *entity.BiomarkerTrend) error {
	readings, err := json.Marshal(t.Readings)
	if err != nil {
		return fmt.Errorf("encode readings: %w", err)
	}
	query, args := r.db.builder().Insert(BiomarkerTrendsTable.Name).
		Columns(columnNames(BiomarkerTrendsColumns)...).
		Values(
			t.ID, t.PatientID, t.ClinicID, t.BiomarkerName, string(t.Category), string(readings),
			t.LatestValue, t.LatestUnit, t.LatestDate, nullableFlag(t.LatestFlag),
			t.Min, t.Max, t.Average, t.ReadingCount, string(t.TrendDirection), t.TrendPercent, t.UpdatedAt,
		).
		OnConflict(
			entsql.ConflictColumns("patient_id", "biomarker_name"),
			entsql.DoNothing(),
		).
		Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errTrendRaced
	}
	return nil
}

func (r *trendRepo) rewriteTrend(ctx context.Context, q querier, t *entity.BiomarkerTrend) error {
	readings, err := json.Marshal(t.Readings)
	if err != nil {
		return fmt.Errorf("encode readings: %w", err)
	}
	query, args := r.db.builder().Update(BiomarkerTrendsTable.Name).
		Set("clinic_id", t.ClinicID).
		Set("category", string(t.Category)).
		Set("readings", string(readings)).
		Set("latest_value", t.LatestValue).
		Set("latest_unit", t.LatestUnit).
		Set("latest_date", t.LatestDate).
		Set("latest_flag", nullableFlag(t.LatestFlag)).
		Set("min", t.Min).
		Set("max", t.Max).
		Set("average", t.Average).
		Set("reading_count", t.ReadingCount).
		Set("trend_direction", string(t.TrendDirection)).
		Set("trend_percent", t.TrendPercent).
		Set("updated_at", t.UpdatedAt).
		Where(entsql.EQ("id", t.ID)).
		Query()
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func validateTrend(t *entity.BiomarkerTrend) error {
	return validateRow(BiomarkerTrendsTable.Name, trendFields, map[string]any{
		"biomarker_name":  t.BiomarkerName,
		"category":        string(t.Category),
		"reading_count":   t.ReadingCount,
		"trend_direction": string(t.TrendDirection),
	})
}

func (r *trendRepo) ListTrends(ctx context.Context, patientID uuid.UUID, category *constants.Category) ([]entity.BiomarkerTrend, error) {
	b := r.db.builder()
	preds := []*entsql.Predicate{entsql.EQ("patient_id", patientID)}
	if category != nil && *category != "" {
		preds = append(preds, entsql.EQ("category", string(*category)))
	}
	q, args := b.Select(columnNames(BiomarkerTrendsColumns)...).From(b.Table(BiomarkerTrendsTable.Name)).
		Where(entsql.And(preds...)).
		OrderBy("category", "biomarker_name").
		Query()
	rows, err := r.db.SQL().QueryContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list trends", "patient_id", patientID, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := []entity.BiomarkerTrend{}
	for rows.Next() {
		t, err := scanTrend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTrend(s rowScanner) (*entity.BiomarkerTrend, error) {
	var (
		t          entity.BiomarkerTrend
		category   string
		readings   []byte
		latestFlag sql.NullString
		direction  string
	)
	err := s.Scan(
		&t.ID, &t.PatientID, &t.ClinicID, &t.BiomarkerName, &category, &readings,
		&t.LatestValue, &t.LatestUnit, &t.LatestDate, &latestFlag,
		&t.Min, &t.Max, &t.Average, &t.ReadingCount, &direction, &t.TrendPercent, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(readings, &t.Readings); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	t.Category = constants.Category(category)
	t.LatestFlag = flagPtr(latestFlag)
	t.TrendDirection = constants.TrendDirection(direction)
	return &t, nil
}
