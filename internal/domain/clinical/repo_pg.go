package clinical

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const admissionRefQuery = `SELECT id, patient_id, bed_id, ward_category, status FROM admission WHERE id = $1`

func (r *repoPG) admissionRef(ctx context.Context, id uuid.UUID, suffix string) (*AdmissionRef, error) {
	var a AdmissionRef
	err := r.conn(ctx).QueryRow(ctx, admissionRefQuery+suffix, id).
		Scan(&a.ID, &a.PatientID, &a.BedID, &a.WardCategory, &a.Status)
	if db.IsNoRows(err) {
		return nil, &admission.Error{Kind: admission.ErrAdmissionNotFound, AdmissionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get admission: %w", err)
	}
	return &a, nil
}

// LockAdmission takes FOR SHARE so appends to one admission run in
// parallel while a discharge (FOR UPDATE) waits for them, and vice versa.
func (r *repoPG) LockAdmission(ctx context.Context, id uuid.UUID, exclusive bool) (*AdmissionRef, error) {
	if exclusive {
		return r.admissionRef(ctx, id, ` FOR NO KEY UPDATE`)
	}
	return r.admissionRef(ctx, id, ` FOR SHARE`)
}

func (r *repoPG) GetAdmission(ctx context.Context, id uuid.UUID) (*AdmissionRef, error) {
	return r.admissionRef(ctx, id, "")
}

func (r *repoPG) AddProgressNote(ctx context.Context, n *ProgressNote) error {
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO progress_note (id, admission_id, author, category, subjective, objective, assessment, plan, new_orders, follow_up_date, is_private, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.AdmissionID, n.Author, n.Category, n.Subjective, n.Objective, n.Assessment, n.Plan,
		n.NewOrders, n.FollowUpDate, n.IsPrivate, n.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert progress note: %w", err)
	}
	_, err = q.Exec(ctx, `
		UPDATE admission SET last_progress_note_at = $2, updated_at = NOW()
		WHERE id = $1 AND (last_progress_note_at IS NULL OR last_progress_note_at < $2)`,
		n.AdmissionID, n.RecordedAt)
	if err != nil {
		return fmt.Errorf("touch last progress note: %w", err)
	}
	return nil
}

func (r *repoPG) AddNursingNote(ctx context.Context, n *NursingNote) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO nursing_note (id, admission_id, author, shift, care_activities, observations, interventions, patient_response, handoff, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.AdmissionID, n.Author, n.Shift, n.CareActivities, n.Observations, n.Interventions,
		n.PatientResponse, n.Handoff, n.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert nursing note: %w", err)
	}
	return nil
}

func (r *repoPG) AddVitals(ctx context.Context, v *VitalSigns) error {
	var level *string
	if v.ConsciousnessLevel != "" {
		s := string(v.ConsciousnessLevel)
		level = &s
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vital_sign (id, admission_id, recorded_by, recorded_at, systolic, diastolic, heart_rate, temperature_f,
			respiratory_rate, oxygen_saturation, weight_kg, height_cm, pain_score, consciousness_level, notes, alert_raised)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		v.ID, v.AdmissionID, v.RecordedBy, v.RecordedAt, v.Systolic, v.Diastolic, v.HeartRate, v.TemperatureF,
		v.RespiratoryRate, v.OxygenSaturation, v.WeightKg, v.HeightCm, v.PainScore, level, v.Notes, v.AlertRaised)
	if err != nil {
		return fmt.Errorf("insert vital signs: %w", err)
	}
	return nil
}

func (r *repoPG) ListProgressNotes(ctx context.Context, admissionID uuid.UUID, includePrivate bool) ([]*ProgressNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, admission_id, author, category, COALESCE(subjective,''), COALESCE(objective,''), COALESCE(assessment,''),
			COALESCE(plan,''), COALESCE(new_orders,''), follow_up_date, is_private, recorded_at
		FROM progress_note
		WHERE admission_id = $1 AND ($2 OR NOT is_private)
		ORDER BY recorded_at, id`, admissionID, includePrivate)
	if err != nil {
		return nil, fmt.Errorf("list progress notes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*ProgressNote, error) {
		var n ProgressNote
		err := row.Scan(&n.ID, &n.AdmissionID, &n.Author, &n.Category, &n.Subjective, &n.Objective, &n.Assessment,
			&n.Plan, &n.NewOrders, &n.FollowUpDate, &n.IsPrivate, &n.RecordedAt)
		return &n, err
	})
}

func (r *repoPG) ListNursingNotes(ctx context.Context, admissionID uuid.UUID) ([]*NursingNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, admission_id, author, shift, care_activities, COALESCE(observations,''), interventions,
			COALESCE(patient_response,''), COALESCE(handoff,''), recorded_at
		FROM nursing_note
		WHERE admission_id = $1
		ORDER BY recorded_at, id`, admissionID)
	if err != nil {
		return nil, fmt.Errorf("list nursing notes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*NursingNote, error) {
		var n NursingNote
		err := row.Scan(&n.ID, &n.AdmissionID, &n.Author, &n.Shift, &n.CareActivities, &n.Observations,
			&n.Interventions, &n.PatientResponse, &n.Handoff, &n.RecordedAt)
		return &n, err
	})
}

// ListVitals returns the newest readings first.
func (r *repoPG) ListVitals(ctx context.Context, admissionID uuid.UUID, limit int) ([]*VitalSigns, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, admission_id, recorded_by, recorded_at, systolic, diastolic, heart_rate, temperature_f::float8,
			respiratory_rate, oxygen_saturation::float8, weight_kg::float8, height_cm::float8, pain_score,
			COALESCE(consciousness_level,''), COALESCE(notes,''), alert_raised
		FROM vital_sign
		WHERE admission_id = $1
		ORDER BY recorded_at DESC, id
		LIMIT $2`, admissionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list vital signs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*VitalSigns, error) {
		var v VitalSigns
		err := row.Scan(&v.ID, &v.AdmissionID, &v.RecordedBy, &v.RecordedAt, &v.Systolic, &v.Diastolic, &v.HeartRate,
			&v.TemperatureF, &v.RespiratoryRate, &v.OxygenSaturation, &v.WeightKg, &v.HeightCm, &v.PainScore,
			&v.ConsciousnessLevel, &v.Notes, &v.AlertRaised)
		return &v, err
	})
}
