package clinical

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// LockAdmission reads the admission and holds a row lock until the
	// surrounding transaction ends. exclusive is needed when the caller
	// will update the admission row itself.
	LockAdmission(ctx context.Context, id uuid.UUID, exclusive bool) (*AdmissionRef, error)
	GetAdmission(ctx context.Context, id uuid.UUID) (*AdmissionRef, error)

	// AddProgressNote also advances the admission's last progress-note time.
	AddProgressNote(ctx context.Context, n *ProgressNote) error
	AddNursingNote(ctx context.Context, n *NursingNote) error
	AddVitals(ctx context.Context, v *VitalSigns) error

	ListProgressNotes(ctx context.Context, admissionID uuid.UUID, includePrivate bool) ([]*ProgressNote, error)
	ListNursingNotes(ctx context.Context, admissionID uuid.UUID) ([]*NursingNote, error)
	ListVitals(ctx context.Context, admissionID uuid.UUID, limit int) ([]*VitalSigns, error)
}
