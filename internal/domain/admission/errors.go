package admission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/ipd/internal/domain/bed"
)

// Domain outcomes. Callers match them with errors.Is.
var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAdmissionNotFound    = errors.New("admission not found")
	ErrAlreadyAdmitted      = errors.New("patient already admitted")
	ErrNotCurrentlyAdmitted = errors.New("admission is not active")
	ErrAlreadyDischarged    = errors.New("admission already discharged")
	ErrNoBedAvailable       = errors.New("no bed available")
	ErrBedUnavailable       = errors.New("bed unavailable")
	ErrInvalidInput         = errors.New("invalid input")
)

// Error carries a domain outcome together with the identifiers a caller
// needs to act on it.
type Error struct {
	Kind         error
	AdmissionID  uuid.UUID
	PatientID    uuid.UUID
	BedID        uuid.UUID
	WardCategory bed.WardCategory
	Detail       string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.AdmissionID != uuid.Nil {
		fmt.Fprintf(&b, " admission_id=%s", e.AdmissionID)
	}
	if e.PatientID != uuid.Nil {
		fmt.Fprintf(&b, " patient_id=%s", e.PatientID)
	}
	if e.BedID != uuid.Nil {
		fmt.Fprintf(&b, " bed_id=%s", e.BedID)
	}
	if e.WardCategory != "" {
		fmt.Fprintf(&b, " ward_category=%s", e.WardCategory)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// StorageError wraps an infrastructure failure. Callers decide whether to
// retry; the domain outcome is unknown.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

var domainKinds = []error{
	ErrPatientNotFound, ErrAdmissionNotFound, ErrAlreadyAdmitted, ErrNotCurrentlyAdmitted,
	ErrAlreadyDischarged, ErrNoBedAvailable, ErrBedUnavailable, ErrInvalidInput,
}

// IsDomain reports whether err is an expected domain outcome.
func IsDomain(err error) bool {
	for _, k := range domainKinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// storage passes domain outcomes through untouched and wraps anything else.
func storage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &Error{Kind: ErrInvalidInput, Detail: strings.Join(problems, "; ")}
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrPatientNotFound):
		return "PATIENT_NOT_FOUND"
	case errors.Is(err, ErrAdmissionNotFound):
		return "ADMISSION_NOT_FOUND"
	case errors.Is(err, ErrAlreadyAdmitted):
		return "ALREADY_ADMITTED"
	case errors.Is(err, ErrNotCurrentlyAdmitted):
		return "NOT_CURRENTLY_ADMITTED"
	case errors.Is(err, ErrAlreadyDischarged):
		return "ALREADY_DISCHARGED"
	case errors.Is(err, ErrNoBedAvailable):
		return "NO_BED_AVAILABLE"
	case errors.Is(err, ErrBedUnavailable):
		return "BED_UNAVAILABLE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	}
	var se *StorageError
	if errors.As(err, &se) {
		return "STORAGE_ERROR"
	}
	return "INTERNAL_ERROR"
}
