package reporting

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/domain/bed"
)

type mockRepo struct {
	beds      []WardAvailability
	admitted  int
	discharge *DischargeStats
	err       error
	gotFrom   time.Time
	gotTo     time.Time
}

func (m *mockRepo) BedCounts(context.Context) ([]WardAvailability, error) {
	return m.beds, m.err
}

func (m *mockRepo) CountAdmitted(_ context.Context, from, to time.Time) (int, error) {
	m.gotFrom, m.gotTo = from, to
	return m.admitted, m.err
}

func (m *mockRepo) DischargeStats(context.Context, time.Time, time.Time) (*DischargeStats, error) {
	if m.discharge == nil {
		return &DischargeStats{Outcomes: map[admission.Outcome]int{}}, m.err
	}
	return m.discharge, m.err
}

var (
	jan1 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb1 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestBedAvailabilityByWard(t *testing.T) {
	svc := NewService(&mockRepo{beds: []WardAvailability{
		{WardCategory: bed.CategoryICU, Total: 4, Available: 1, Occupied: 3},
		{WardCategory: bed.CategoryGeneral, Total: 30, Available: 12, Occupied: 18},
	}})

	wards, err := svc.BedAvailabilityByWard(context.Background())
	require.NoError(t, err)
	require.Len(t, wards, len(bed.Categories))
	assert.Equal(t, bed.CategoryGeneral, wards[0].WardCategory)
	assert.Equal(t, 18, wards[0].Occupied)
	assert.Equal(t, WardAvailability{WardCategory: bed.CategoryICU, Total: 4, Available: 1, Occupied: 3}, wards[2])
	assert.Equal(t, WardAvailability{WardCategory: bed.CategoryPICU}, wards[5])

	occupied, err := svc.OccupiedByCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, occupied["ICU"])
	assert.Equal(t, 0, occupied["NICU"])
}

func TestPerformanceMetrics_EmptyIsZero(t *testing.T) {
	svc := NewService(&mockRepo{})

	m, err := svc.PerformanceMetrics(context.Background(), jan1, feb1)
	require.NoError(t, err)
	assert.Zero(t, m.Admissions)
	assert.Zero(t, m.Discharges)
	assert.Zero(t, m.AverageLengthOfStayDays)
	assert.Zero(t, m.BedOccupancyRate)
	assert.False(t, math.IsNaN(m.BedOccupancyRate))
	assert.Len(t, m.Outcomes, len(admission.Outcomes))
	for _, n := range m.Outcomes {
		assert.Zero(t, n)
	}
}

func TestPerformanceMetrics(t *testing.T) {
	repo := &mockRepo{
		beds: []WardAvailability{
			{WardCategory: bed.CategoryICU, Total: 4, Occupied: 3, Available: 1},
			{WardCategory: bed.CategoryGeneral, Total: 6, Occupied: 3, Available: 3},
		},
		admitted: 9,
		discharge: &DischargeStats{
			Count:           3,
			TotalStayDays:   10,
			StayDaysCounted: 3,
			Outcomes:        map[admission.Outcome]int{admission.OutcomeCured: 2, admission.OutcomeWorsened: 1},
		},
	}
	svc := NewService(repo)

	m, err := svc.PerformanceMetrics(context.Background(), jan1, feb1)
	require.NoError(t, err)
	assert.Equal(t, 9, m.Admissions)
	assert.Equal(t, 3, m.Discharges)
	assert.Equal(t, 3.33, m.AverageLengthOfStayDays)
	assert.Equal(t, 10, m.TotalBeds)
	assert.Equal(t, 6, m.OccupiedBeds)
	assert.Equal(t, 0.6, m.BedOccupancyRate)
	assert.Equal(t, 2, m.Outcomes[admission.OutcomeCured])
	assert.Equal(t, 0, m.Outcomes[admission.OutcomeImproved])
	assert.Equal(t, jan1, repo.gotFrom)
	assert.Equal(t, feb1, repo.gotTo)
}

func TestPerformanceMetrics_Errors(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.PerformanceMetrics(context.Background(), feb1, jan1)
	assert.ErrorIs(t, err, admission.ErrInvalidInput)

	svc = NewService(&mockRepo{err: errors.New("db down")})
	_, err = svc.PerformanceMetrics(context.Background(), jan1, feb1)
	var se *admission.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestPerformanceWorkbook(t *testing.T) {
	svc := NewService(&mockRepo{admitted: 2})
	data, err := svc.PerformanceWorkbook(context.Background(), jan1, feb1)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Performance", "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	rows, err := f.GetRows("Outcomes")
	require.NoError(t, err)
	assert.Len(t, rows, 1+len(admission.Outcomes))
}

func TestPerformanceMetrics_SparseOccupancyIsNotRoundedAway(t *testing.T) {
	svc := NewService(&mockRepo{beds: []WardAvailability{
		{WardCategory: bed.CategoryGeneral, Total: 300, Occupied: 1, Available: 299},
	}})

	m, err := svc.PerformanceMetrics(context.Background(), jan1, feb1)
	require.NoError(t, err)
	assert.Equal(t, 0.0033, m.BedOccupancyRate)
	assert.Greater(t, m.BedOccupancyRate, 0.0)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0033, ratio(1, 300, 4))
	assert.Equal(t, 0.3333, ratio(1, 3, 4))
	assert.Equal(t, 3.33, ratio(10, 3, 2))
	assert.Zero(t, ratio(5, 0, 4))
}

func TestBedAvailabilityByWard_RepeatableWithoutMutation(t *testing.T) {
	svc := NewService(&mockRepo{beds: []WardAvailability{
		{WardCategory: bed.CategoryCCU, Total: 2, Available: 0, Occupied: 2},
		{WardCategory: bed.CategoryGeneral, Total: 5, Available: 4, Occupied: 1},
	}})

	first, err := svc.BedAvailabilityByWard(context.Background())
	require.NoError(t, err)
	second, err := svc.BedAvailabilityByWard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
