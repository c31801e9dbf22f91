// Package medication creates the prescriptions issued at discharge.
package medication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const StatusActive = "ACTIVE"

type Prescription struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	AdmissionID  *uuid.UUID `json:"admission_id,omitempty"`
	MedicationID string     `json:"medication_id"`
	Dosage       string     `json:"dosage"`
	Frequency    string     `json:"frequency"`
	Duration     string     `json:"duration"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (p *Prescription) Validate() error {
	if p.PatientID == uuid.Nil || p.DoctorID == uuid.Nil {
		return errors.New("patient_id and doctor_id are required")
	}
	if p.MedicationID == "" || p.Dosage == "" || p.Frequency == "" || p.Duration == "" {
		return errors.New("medication_id, dosage, frequency and duration are required")
	}
	return nil
}

// PrescriptionService is the pharmacy collaborator.
type PrescriptionService interface {
	CreatePrescription(ctx context.Context, p *Prescription) error
}

// IsTransactional reports whether s writes through the caller's database
// transaction, so that a failure can roll back the enclosing operation.
func IsTransactional(s PrescriptionService) bool {
	t, ok := s.(interface{ Transactional() bool })
	return ok && t.Transactional()
}
