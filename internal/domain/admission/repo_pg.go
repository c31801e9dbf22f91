package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ipd/internal/platform/db"
)

const activePatientIndex = "admission_one_active_per_patient"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const admCols = `id, admission_number, patient_id, doctor_id, bed_id, ward_category, diagnosis,
	admission_type, priority, status, COALESCE(notes, ''), admitted_at, admitted_by,
	discharged_at, discharged_by, discharge_type, discharge_notes, discharge_summary,
	length_of_stay_days, last_progress_note_at, created_at, updated_at`

func scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	var summary []byte
	err := row.Scan(
		&a.ID, &a.AdmissionNumber, &a.PatientID, &a.DoctorID, &a.BedID, &a.WardCategory, &a.Diagnosis,
		&a.AdmissionType, &a.Priority, &a.Status, &a.Notes, &a.AdmittedAt, &a.AdmittedBy,
		&a.DischargedAt, &a.DischargedBy, &a.DischargeType, &a.DischargeNotes, &summary,
		&a.LengthOfStayDays, &a.LastProgressNoteAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		a.DischargeSummary = &DischargeSummary{}
		if err := json.Unmarshal(summary, a.DischargeSummary); err != nil {
			return nil, fmt.Errorf("decode discharge summary: %w", err)
		}
	}
	return &a, nil
}

func marshalSummary(s *DischargeSummary) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// NextSequence runs inside the admit transaction, so a rolled-back admit
// also rolls back its number and concurrent admits queue on the year row.
func (r *repoPG) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admission_sequence (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = admission_sequence.last_value + 1
		RETURNING last_value`, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next admission sequence: %w", err)
	}
	return seq, nil
}

func (r *repoPG) Create(ctx context.Context, a *Admission) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admission (
			id, admission_number, patient_id, doctor_id, bed_id, ward_category, diagnosis,
			admission_type, priority, status, notes, admitted_at, admitted_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, ''),$12,$13)
		RETURNING created_at, updated_at`,
		a.ID, a.AdmissionNumber, a.PatientID, a.DoctorID, a.BedID, a.WardCategory, a.Diagnosis,
		a.AdmissionType, a.Priority, a.Status, a.Notes, a.AdmittedAt, a.AdmittedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, activePatientIndex) {
		return &Error{Kind: ErrAlreadyAdmitted, PatientID: a.PatientID}
	}
	if err != nil {
		return fmt.Errorf("insert admission: %w", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, suffix string, id uuid.UUID) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admCols+` FROM admission WHERE id = $1`+suffix, id))
	if db.IsNoRows(err) {
		return nil, &Error{Kind: ErrAdmissionNotFound, AdmissionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get admission: %w", err)
	}
	return a, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.get(ctx, "", id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.get(ctx, " FOR UPDATE", id)
}

func (r *repoPG) FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admCols+` FROM admission
		WHERE patient_id = $1 AND status IN ('ADMITTED', 'TRANSFERRED')
		FOR UPDATE`, patientID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active admission: %w", err)
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Admission) error {
	summary, err := marshalSummary(a.DischargeSummary)
	if err != nil {
		return fmt.Errorf("encode discharge summary: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE admission SET
			doctor_id=$2, bed_id=$3, ward_category=$4, diagnosis=$5, priority=$6, status=$7,
			notes=NULLIF($8, ''), discharged_at=$9, discharged_by=$10, discharge_type=$11,
			discharge_notes=$12, discharge_summary=$13, length_of_stay_days=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorID, a.BedID, a.WardCategory, a.Diagnosis, a.Priority, a.Status,
		a.Notes, a.DischargedAt, a.DischargedBy, a.DischargeType,
		a.DischargeNotes, summary, a.LengthOfStayDays,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return &Error{Kind: ErrAdmissionNotFound, AdmissionID: a.ID}
	}
	if err != nil {
		return fmt.Errorf("update admission: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	var where []string
	var args []interface{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.WardCategory != "" {
		args = append(args, f.WardCategory)
		where = append(where, fmt.Sprintf("ward_category = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admission`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+admCols+` FROM admission`+clause+
		fmt.Sprintf(` ORDER BY admitted_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}
	defer rows.Close()

	var out []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan admission: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) AddTransfer(ctx context.Context, t *TransferRecord) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO admission_transfer (
			id, admission_id, from_bed_id, to_bed_id, from_category, to_category, reason, actor, transferred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.AdmissionID, t.FromBedID, t.ToBedID, t.FromCategory, t.ToCategory, t.Reason, t.Actor, t.TransferredAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r *repoPG) ListTransfers(ctx context.Context, admissionID uuid.UUID) ([]TransferRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, admission_id, from_bed_id, to_bed_id, from_category, to_category, reason, actor, transferred_at
		FROM admission_transfer WHERE admission_id = $1
		ORDER BY transferred_at, id`, admissionID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []TransferRecord
	for rows.Next() {
		var t TransferRecord
		if err := rows.Scan(&t.ID, &t.AdmissionID, &t.FromBedID, &t.ToBedID, &t.FromCategory, &t.ToCategory,
			&t.Reason, &t.Actor, &t.TransferredAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
