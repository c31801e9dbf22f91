package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ipd/internal/platform/db"
)

type storePG struct {
	pool *pgxpool.Pool
}

// NewStore returns a PrescriptionService writing to the tenant's
// prescription table through the caller's transaction.
func NewStore(pool *pgxpool.Pool) PrescriptionService {
	return &storePG{pool: pool}
}

func (s *storePG) Transactional() bool { return true }

func (s *storePG) CreatePrescription(ctx context.Context, p *Prescription) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = StatusActive
	}
	p.CreatedAt = time.Now().UTC()
	_, err := db.From(ctx, s.pool).Exec(ctx, `
		INSERT INTO prescription (id, patient_id, doctor_id, admission_id, medication_id, dosage, frequency, duration, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.PatientID, p.DoctorID, p.AdmissionID, p.MedicationID, p.Dosage, p.Frequency, p.Duration, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}
