// Package reporting aggregates read-only views over beds and admissions.
package reporting

import (
	"context"
	"time"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/domain/bed"
)

type WardAvailability struct {
	WardCategory bed.WardCategory `json:"ward_category"`
	Total        int              `json:"total"`
	Available    int              `json:"available"`
	Occupied     int              `json:"occupied"`
}

// PerformanceMetrics covers admissions and discharges inside [From, To).
// BedOccupancyRate is a snapshot taken when the report is built.
type PerformanceMetrics struct {
	From                    time.Time                 `json:"from"`
	To                      time.Time                 `json:"to"`
	Admissions              int                       `json:"admissions"`
	Discharges              int                       `json:"discharges"`
	AverageLengthOfStayDays float64                   `json:"average_length_of_stay_days"`
	TotalBeds               int                       `json:"total_beds"`
	OccupiedBeds            int                       `json:"occupied_beds"`
	BedOccupancyRate        float64                   `json:"bed_occupancy_rate"`
	Outcomes                map[admission.Outcome]int `json:"outcomes"`
	GeneratedAt             time.Time                 `json:"generated_at"`
}

// DischargeStats is the raw aggregate behind PerformanceMetrics.
type DischargeStats struct {
	Count           int
	TotalStayDays   int
	StayDaysCounted int
	Outcomes        map[admission.Outcome]int
}

type Repository interface {
	BedCounts(ctx context.Context) ([]WardAvailability, error)
	CountAdmitted(ctx context.Context, from, to time.Time) (int, error)
	DischargeStats(ctx context.Context, from, to time.Time) (*DischargeStats, error)
}
