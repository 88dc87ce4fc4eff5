package trend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/entity"
)

type mockStore struct {
	mu     sync.Mutex
	trends map[string]entity.BiomarkerTrend
	saves  int
	getErr error
}

func newMockStore() *mockStore {
	return &mockStore{trends: make(map[string]entity.BiomarkerTrend)}
}

func (m *mockStore) GetTrend(_ context.Context, patientID uuid.UUID, name string) (*entity.BiomarkerTrend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.trends[patientID.String()+"/"+name]
	if !ok {
		return nil, fmt.Errorf("trend %s: %w", name, common.ErrNotFound)
	}
	t.Readings = append([]entity.Reading(nil), t.Readings...)
	return &t, nil
}

// UpdateTrend is not atomic; concurrent callers rely on the aggregator's lock.
func (m *mockStore) UpdateTrend(ctx context.Context, patientID uuid.UUID, name string, apply ApplyFunc) error {
	cur, err := m.GetTrend(ctx, patientID, name)
	if errors.Is(err, common.ErrNotFound) {
		cur = nil
	} else if err != nil {
		return err
	}
	next, err := apply(cur)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *next
	cp.Readings = append([]entity.Reading(nil), next.Readings...)
	m.trends[next.PatientID.String()+"/"+next.BiomarkerName] = cp
	m.saves++
	return nil
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestUpsertReadingFirstReading(t *testing.T) {
	agg := NewAggregator(newMockStore(), nil)
	pid := uuid.New()

	tr, err := agg.UpsertReading(context.Background(), ReadingInput{
		PatientID:     pid,
		BiomarkerName: "hemoglobin",
		Category:      constants.CategoryCBC,
		Reading:       entity.Reading{Date: day(1), Value: 14.2, Unit: "g/dL"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ReadingCount != 1 || tr.Min != 14.2 || tr.Max != 14.2 || tr.Average != 14.2 || tr.LatestValue != 14.2 {
		t.Errorf("derived stats should equal the single reading: %+v", tr)
	}
	if tr.TrendDirection != constants.TrendStable || tr.TrendPercent != 0 {
		t.Errorf("first reading should be stable/0: %s %v", tr.TrendDirection, tr.TrendPercent)
	}
}

func TestUpsertReadingRecomputesOverAllReadings(t *testing.T) {
	store := newMockStore()
	agg := NewAggregator(store, nil)
	pid := uuid.New()

	for i, v := range []float64{100, 110, 90} {
		_, err := agg.UpsertReading(context.Background(), ReadingInput{
			PatientID:     pid,
			BiomarkerName: "glucose",
			Reading:       entity.Reading{Date: day(i + 1), Value: v},
		})
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	tr, _ := store.GetTrend(context.Background(), pid, "glucose")
	if tr.Min != 90 || tr.Max != 110 || !almostEqual(tr.Average, 100) {
		t.Errorf("min/max/avg = %v/%v/%v", tr.Min, tr.Max, tr.Average)
	}
	if !almostEqual(tr.TrendPercent, -10) {
		t.Errorf("trend percent = %v, want -10", tr.TrendPercent)
	}
	if tr.TrendDirection != constants.TrendDecreasing {
		t.Errorf("direction = %s", tr.TrendDirection)
	}
	if tr.ReadingCount != 3 || tr.LatestValue != 90 {
		t.Errorf("count/latest = %d/%v", tr.ReadingCount, tr.LatestValue)
	}
}

func TestRecomputeSortsByDate(t *testing.T) {
	tr := &entity.BiomarkerTrend{Readings: []entity.Reading{
		{Date: day(10), Value: 120},
		{Date: day(1), Value: 100},
		{Date: day(5), Value: 103},
	}}
	Recompute(tr)
	if tr.Readings[0].Value != 100 || tr.Readings[2].Value != 120 {
		t.Fatalf("readings not sorted: %+v", tr.Readings)
	}
	if !almostEqual(tr.TrendPercent, 20) || tr.TrendDirection != constants.TrendIncreasing {
		t.Errorf("percent/direction = %v/%s", tr.TrendPercent, tr.TrendDirection)
	}
	if !tr.LatestDate.Equal(day(10)) {
		t.Errorf("latest date = %v", tr.LatestDate)
	}
}

func TestRecomputeDirectionThresholds(t *testing.T) {
	tests := []struct {
		first, last float64
		want        constants.TrendDirection
	}{
		{100, 104, constants.TrendStable},
		{100, 96, constants.TrendStable},
		{100, 105.5, constants.TrendIncreasing},
		{100, 94, constants.TrendDecreasing},
		{0, 50, constants.TrendStable},
	}
	for _, tt := range tests {
		tr := &entity.BiomarkerTrend{Readings: []entity.Reading{{Date: day(1), Value: tt.first}, {Date: day(2), Value: tt.last}}}
		Recompute(tr)
		if tr.TrendDirection != tt.want {
			t.Errorf("%v -> %v: direction %s, want %s", tt.first, tt.last, tr.TrendDirection, tt.want)
		}
	}
}

func TestUpsertReadingSerializesSameKey(t *testing.T) {
	store := newMockStore()
	agg := NewAggregator(store, nil)
	pid := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = agg.UpsertReading(context.Background(), ReadingInput{
				PatientID:     pid,
				BiomarkerName: "tsh",
				Reading:       entity.Reading{Date: day(1 + i%28), Value: float64(i)},
			})
		}(i)
	}
	wg.Wait()

	tr, _ := store.GetTrend(context.Background(), pid, "tsh")
	if tr.ReadingCount != 50 {
		t.Fatalf("lost updates: %d readings", tr.ReadingCount)
	}
	if agg.locks.size() != 0 {
		t.Errorf("keyed locks leaked: %d", agg.locks.size())
	}
}

func TestUpsertReadingErrors(t *testing.T) {
	store := newMockStore()
	agg := NewAggregator(store, nil)

	if _, err := agg.UpsertReading(context.Background(), ReadingInput{BiomarkerName: "x"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}

	store.getErr = errors.New("boom")
	if _, err := agg.UpsertReading(context.Background(), ReadingInput{PatientID: uuid.New(), BiomarkerName: "x"}); err == nil {
		t.Error("expected load error")
	}
}
