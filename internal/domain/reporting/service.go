package reporting

import (
	"context"
	"math"
	"time"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/domain/bed"
	xlsx "github.com/ehr/ipd/internal/platform/reporting"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// BedAvailabilityByWard lists every known ward category, including ones
// with no beds, in display order.
func (s *Service) BedAvailabilityByWard(ctx context.Context) ([]WardAvailability, error) {
	counts, err := s.repo.BedCounts(ctx)
	if err != nil {
		return nil, &admission.StorageError{Op: "count beds", Err: err}
	}
	byCategory := make(map[bed.WardCategory]WardAvailability, len(counts))
	for _, c := range counts {
		byCategory[c.WardCategory] = c
	}
	out := make([]WardAvailability, 0, len(bed.Categories))
	for _, cat := range bed.Categories {
		w := byCategory[cat]
		w.WardCategory = cat
		out = append(out, w)
	}
	return out, nil
}

// OccupiedByCategory feeds the occupied-beds gauge.
func (s *Service) OccupiedByCategory(ctx context.Context) (map[string]int, error) {
	wards, err := s.BedAvailabilityByWard(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(wards))
	for _, w := range wards {
		out[string(w.WardCategory)] = w.Occupied
	}
	return out, nil
}

// PerformanceMetrics aggregates [from, to). Empty ranges yield zeros.
func (s *Service) PerformanceMetrics(ctx context.Context, from, to time.Time) (*PerformanceMetrics, error) {
	if !from.Before(to) {
		return nil, &admission.Error{Kind: admission.ErrInvalidInput, Detail: "from must be before to"}
	}

	admitted, err := s.repo.CountAdmitted(ctx, from, to)
	if err != nil {
		return nil, &admission.StorageError{Op: "count admissions", Err: err}
	}
	stats, err := s.repo.DischargeStats(ctx, from, to)
	if err != nil {
		return nil, &admission.StorageError{Op: "discharge stats", Err: err}
	}
	wards, err := s.BedAvailabilityByWard(ctx)
	if err != nil {
		return nil, err
	}

	m := &PerformanceMetrics{
		From:        from,
		To:          to,
		Admissions:  admitted,
		Discharges:  stats.Count,
		Outcomes:    make(map[admission.Outcome]int, len(admission.Outcomes)),
		GeneratedAt: s.now(),
	}
	for _, o := range admission.Outcomes {
		m.Outcomes[o] = stats.Outcomes[o]
	}
	m.AverageLengthOfStayDays = ratio(float64(stats.TotalStayDays), float64(stats.StayDaysCounted), 2)
	for _, w := range wards {
		m.TotalBeds += w.Total
		m.OccupiedBeds += w.Occupied
	}
	m.BedOccupancyRate = ratio(float64(m.OccupiedBeds), float64(m.TotalBeds), 4)
	return m, nil
}

// ratio rounds num/den to the given decimal places and returns 0 for an
// empty denominator.
func ratio(num, den float64, places int) float64 {
	if den == 0 {
		return 0
	}
	scale := math.Pow10(places)
	return math.Round(num/den*scale) / scale
}

func (s *Service) BedAvailabilityWorkbook(ctx context.Context) ([]byte, error) {
	wards, err := s.BedAvailabilityByWard(ctx)
	if err != nil {
		return nil, err
	}
	sheet := xlsx.Sheet{
		Name:    "Bed Availability",
		Headers: []string{"Ward Category", "Total", "Available", "Occupied"},
		Widths:  []float64{20, 10, 12, 12},
	}
	for _, w := range wards {
		sheet.Rows = append(sheet.Rows, []any{string(w.WardCategory), w.Total, w.Available, w.Occupied})
	}
	return xlsx.Workbook(sheet)
}

func (s *Service) PerformanceWorkbook(ctx context.Context, from, to time.Time) ([]byte, error) {
	m, err := s.PerformanceMetrics(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary := xlsx.Sheet{
		Name:    "Performance",
		Headers: []string{"Metric", "Value"},
		Widths:  []float64{32, 24},
		Rows: [][]any{
			{"From", m.From.Format(time.RFC3339)},
			{"To", m.To.Format(time.RFC3339)},
			{"Admissions", m.Admissions},
			{"Discharges", m.Discharges},
			{"Average length of stay (days)", m.AverageLengthOfStayDays},
			{"Total beds", m.TotalBeds},
			{"Occupied beds", m.OccupiedBeds},
			{"Bed occupancy rate", m.BedOccupancyRate},
		},
	}
	outcomes := xlsx.Sheet{
		Name:    "Outcomes",
		Headers: []string{"Outcome", "Discharges"},
		Widths:  []float64{16, 12},
	}
	for _, o := range admission.Outcomes {
		outcomes.Rows = append(outcomes.Rows, []any{string(o), m.Outcomes[o]})
	}
	return xlsx.Workbook(summary, outcomes)
}
