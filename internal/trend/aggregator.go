// Package trend maintains the per-patient, per-biomarker reading history and
// its derived statistics.
package trend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

// Direction thresholds in percent.
const (
	increasingAbove = 5.0
	decreasingBelow = -5.0
)

// ApplyFunc receives the stored trend, nil when the pair has none yet, and
// returns the trend to write back. It may run more than once.
type ApplyFunc = func(current *entity.BiomarkerTrend) (*entity.BiomarkerTrend, error)

// Store persists trends. UpdateTrend must run the read, apply and write as one
// unit for the (patient, biomarker) pair, across every process sharing the store.
type Store interface {
	UpdateTrend(ctx context.Context, patientID uuid.UUID, biomarkerName string, apply ApplyFunc) error
}

// ReadingInput identifies the trend a reading belongs to.
type ReadingInput struct {
	PatientID     uuid.UUID
	ClinicID      uuid.UUID
	BiomarkerName string
	Category      constants.Category
	Reading       entity.Reading
}

// Aggregator applies readings to trends. Updates to one (patient, biomarker)
// pair queue on an in-process lock before reaching the store.
type Aggregator struct {
	store  Store
	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time
}

func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, locks: newKeyedMutex(), logger: logger, now: time.Now}
}

// UpsertReading creates the trend on first reading, otherwise inserts the
// reading and recomputes every derived field.
func (a *Aggregator) UpsertReading(ctx context.Context, in ReadingInput) (*entity.BiomarkerTrend, error) {
	name := strings.TrimSpace(in.BiomarkerName)
	if in.PatientID == uuid.Nil || name == "" {
		return nil, common.NewAppError("TREND_INPUT", "patient_id and biomarker name are required", common.ErrInvalidInput)
	}

	unlock := a.locks.Lock(in.PatientID.String() + "/" + name)
	defer unlock()

	var t *entity.BiomarkerTrend
	err := a.store.UpdateTrend(ctx, in.PatientID, name, func(cur *entity.BiomarkerTrend) (*entity.BiomarkerTrend, error) {
		next := cur
		if next == nil {
			next = &entity.BiomarkerTrend{
				ID:            uuid.New(),
				PatientID:     in.PatientID,
				ClinicID:      in.ClinicID,
				BiomarkerName: name,
				Category:      in.Category,
			}
			if next.Category == "" {
				next.Category = constants.CategoryOther
			}
		}
		next.Readings = append(next.Readings, in.Reading)
		Recompute(next)
		next.UpdatedAt = a.now().UTC()
		t = next
		return next, nil
	})
	if err != nil {
		a.logger.Error("trend.update.failed", "patient_id", in.PatientID, "biomarker", name, "error", err)
		return nil, fmt.Errorf("update trend: %w", err)
	}
	a.logger.Debug("trend.upsert.ok",
		"patient_id", in.PatientID,
		"biomarker", name,
		"readings", t.ReadingCount,
		"direction", t.TrendDirection,
		"percent", t.TrendPercent,
	)
	return t, nil
}

// Recompute sorts readings by date and rewrites every derived field from them.
func Recompute(t *entity.BiomarkerTrend) {
	sort.SliceStable(t.Readings, func(i, j int) bool {
		return t.Readings[i].Date.Before(t.Readings[j].Date)
	})

	n := len(t.Readings)
	t.ReadingCount = n
	if n == 0 {
		t.LatestValue, t.Min, t.Max, t.Average, t.TrendPercent = 0, 0, 0, 0, 0
		t.LatestUnit, t.LatestDate, t.LatestFlag = "", time.Time{}, nil
		t.TrendDirection = constants.TrendStable
		return
	}

	first, last := t.Readings[0], t.Readings[n-1]
	t.LatestValue = last.Value
	t.LatestUnit = last.Unit
	t.LatestDate = last.Date
	t.LatestFlag = last.Flag

	lo, hi, sum := first.Value, first.Value, 0.0
	for _, r := range t.Readings {
		if r.Value < lo {
			lo = r.Value
		}
		if r.Value > hi {
			hi = r.Value
		}
		sum += r.Value
	}
	t.Min, t.Max, t.Average = lo, hi, sum/float64(n)

	t.TrendPercent = 0
	if n > 1 && first.Value != 0 {
		t.TrendPercent = (last.Value - first.Value) / first.Value * 100
	}
	switch {
	case t.TrendPercent > increasingAbove:
		t.TrendDirection = constants.TrendIncreasing
	case t.TrendPercent < decreasingBelow:
		t.TrendDirection = constants.TrendDecreasing
	default:
		t.TrendDirection = constants.TrendStable
	}
}
