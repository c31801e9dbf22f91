package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

func (r *repoPG) BedCounts(ctx context.Context) ([]WardAvailability, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT w.category,
			COUNT(*),
			COUNT(*) FILTER (WHERE b.status = 'AVAILABLE'),
			COUNT(*) FILTER (WHERE b.status = 'OCCUPIED')
		FROM bed b
		JOIN room r ON r.id = b.room_id
		JOIN ward w ON w.id = r.ward_id
		GROUP BY w.category`)
	if err != nil {
		return nil, fmt.Errorf("count beds: %w", err)
	}
	defer rows.Close()

	var out []WardAvailability
	for rows.Next() {
		var w WardAvailability
		if err := rows.Scan(&w.WardCategory, &w.Total, &w.Available, &w.Occupied); err != nil {
			return nil, fmt.Errorf("scan bed counts: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *repoPG) CountAdmitted(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM admission WHERE admitted_at >= $1 AND admitted_at < $2`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admissions: %w", err)
	}
	return n, nil
}

func (r *repoPG) DischargeStats(ctx context.Context, from, to time.Time) (*DischargeStats, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT COALESCE(discharge_summary->>'outcome', ''), COUNT(*),
			COALESCE(SUM(length_of_stay_days), 0), COUNT(length_of_stay_days)
		FROM admission
		WHERE status = 'DISCHARGED' AND discharged_at >= $1 AND discharged_at < $2
		GROUP BY 1`, from, to)
	if err != nil {
		return nil, fmt.Errorf("discharge stats: %w", err)
	}
	defer rows.Close()

	stats := &DischargeStats{Outcomes: map[admission.Outcome]int{}}
	for rows.Next() {
		var (
			outcome        string
			count, sum, nn int
		)
		if err := rows.Scan(&outcome, &count, &sum, &nn); err != nil {
			return nil, fmt.Errorf("scan discharge stats: %w", err)
		}
		stats.Count += count
		stats.TotalStayDays += sum
		stats.StayDaysCounted += nn
		if outcome != "" {
			stats.Outcomes[admission.Outcome(outcome)] += count
		}
	}
	return stats, rows.Err()
}
