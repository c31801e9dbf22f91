// Package identity resolves patient references for the IPD core.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPatientNotFound = errors.New("patient not found")

type Patient struct {
	ID        uuid.UUID `json:"id"`
	MRN       string    `json:"mrn"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Active    bool      `json:"active"`
}

// Directory resolves a patient id. Unknown and inactive patients yield
// ErrPatientNotFound.
type Directory interface {
	ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}
