package admission

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// NextSequence increments and returns the admission counter for year.
	NextSequence(ctx context.Context, year int) (int, error)
	// Create fails with ErrAlreadyAdmitted when the patient already holds
	// an active admission.
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	// GetForUpdate row-locks the admission until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error)
	FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error)
	Update(ctx context.Context, a *Admission) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error)

	AddTransfer(ctx context.Context, t *TransferRecord) error
	ListTransfers(ctx context.Context, admissionID uuid.UUID) ([]TransferRecord, error)
}
