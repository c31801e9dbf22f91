package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ipd/internal/domain/bed"
)

type AdmissionType string

const (
	TypeEmergency AdmissionType = "EMERGENCY"
	TypeElective  AdmissionType = "ELECTIVE"
	TypeTransfer  AdmissionType = "TRANSFER"
)

func (t AdmissionType) Valid() bool {
	return t == TypeEmergency || t == TypeElective || t == TypeTransfer
}

type Priority string

const (
	PriorityRoutine  Priority = "ROUTINE"
	PriorityUrgent   Priority = "URGENT"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	return p == PriorityRoutine || p == PriorityUrgent || p == PriorityCritical
}

type Status string

const (
	StatusAdmitted    Status = "ADMITTED"
	StatusTransferred Status = "TRANSFERRED"
	StatusDischarged  Status = "DISCHARGED"
)

func (s Status) Valid() bool {
	return s == StatusAdmitted || s == StatusTransferred || s == StatusDischarged
}

// Active reports whether the admission still holds a bed.
func (s Status) Active() bool {
	return s == StatusAdmitted || s == StatusTransferred
}

type DischargeType string

const (
	DischargeRegular              DischargeType = "REGULAR"
	DischargeAgainstMedicalAdvice DischargeType = "AGAINST_MEDICAL_ADVICE"
	DischargeTransfer             DischargeType = "TRANSFER"
	DischargeExpired              DischargeType = "EXPIRED"
)

func (d DischargeType) Valid() bool {
	switch d {
	case DischargeRegular, DischargeAgainstMedicalAdvice, DischargeTransfer, DischargeExpired:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeCured     Outcome = "CURED"
	OutcomeImproved  Outcome = "IMPROVED"
	OutcomeUnchanged Outcome = "UNCHANGED"
	OutcomeWorsened  Outcome = "WORSENED"
)

// Outcomes lists every discharge outcome in report order.
var Outcomes = []Outcome{OutcomeCured, OutcomeImproved, OutcomeUnchanged, OutcomeWorsened}

func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

type Admission struct {
	ID                 uuid.UUID         `json:"id"`
	AdmissionNumber    string            `json:"admission_number"`
	PatientID          uuid.UUID         `json:"patient_id"`
	DoctorID           uuid.UUID         `json:"doctor_id"`
	BedID              uuid.UUID         `json:"bed_id"`
	WardCategory       bed.WardCategory  `json:"ward_category"`
	Diagnosis          string            `json:"diagnosis"`
	AdmissionType      AdmissionType     `json:"admission_type"`
	Priority           Priority          `json:"priority"`
	Status             Status            `json:"status"`
	Notes              string            `json:"notes,omitempty"`
	AdmittedAt         time.Time         `json:"admitted_at"`
	AdmittedBy         string            `json:"admitted_by"`
	DischargedAt       *time.Time        `json:"discharged_at,omitempty"`
	DischargedBy       *string           `json:"discharged_by,omitempty"`
	DischargeType      *DischargeType    `json:"discharge_type,omitempty"`
	DischargeNotes     *string           `json:"discharge_notes,omitempty"`
	DischargeSummary   *DischargeSummary `json:"discharge_summary,omitempty"`
	LengthOfStayDays   *int              `json:"length_of_stay_days,omitempty"`
	LastProgressNoteAt *time.Time        `json:"last_progress_note_at,omitempty"`
	Transfers          []TransferRecord  `json:"transfers,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// TransferRecord is one append-only entry in an admission's transfer history.
// ToBedID is nil when the bed did not change.
type TransferRecord struct {
	ID            uuid.UUID        `json:"id"`
	AdmissionID   uuid.UUID        `json:"admission_id"`
	FromBedID     uuid.UUID        `json:"from_bed_id"`
	ToBedID       *uuid.UUID       `json:"to_bed_id,omitempty"`
	FromCategory  bed.WardCategory `json:"from_ward_category"`
	ToCategory    bed.WardCategory `json:"to_ward_category"`
	Reason        string           `json:"reason"`
	Actor         string           `json:"actor"`
	TransferredAt time.Time        `json:"transferred_at"`
}

type DischargeMedication struct {
	MedicationID string `json:"medication_id"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
}

type DischargeSummary struct {
	FinalDiagnoses       []string              `json:"final_diagnoses"`
	TreatmentGiven       string                `json:"treatment_given"`
	Complications        string                `json:"complications,omitempty"`
	Outcome              Outcome               `json:"outcome"`
	FollowUpInstructions string                `json:"follow_up_instructions,omitempty"`
	FollowUpDate         *time.Time            `json:"follow_up_date,omitempty"`
	Medications          []DischargeMedication `json:"medications_on_discharge,omitempty"`
}

// -- Requests --

type AdmitRequest struct {
	PatientID     uuid.UUID        `json:"patient_id"`
	DoctorID      uuid.UUID        `json:"doctor_id"`
	Diagnosis     string           `json:"diagnosis"`
	AdmissionType AdmissionType    `json:"admission_type"`
	Priority      Priority         `json:"priority"`
	WardCategory  bed.WardCategory `json:"ward_category"`
	Notes         string           `json:"notes,omitempty"`
	Actor         string           `json:"-"`
}

func (r *AdmitRequest) Validate() error {
	var problems []string
	if r.PatientID == uuid.Nil {
		problems = append(problems, "patient_id is required")
	}
	if r.DoctorID == uuid.Nil {
		problems = append(problems, "doctor_id is required")
	}
	if strings.TrimSpace(r.Diagnosis) == "" {
		problems = append(problems, "diagnosis is required")
	}
	if !r.AdmissionType.Valid() {
		problems = append(problems, fmt.Sprintf("invalid admission_type %q", r.AdmissionType))
	}
	if !r.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("invalid priority %q", r.Priority))
	}
	if !r.WardCategory.Valid() {
		problems = append(problems, fmt.Sprintf("invalid ward_category %q", r.WardCategory))
	}
	if r.Actor == "" {
		problems = append(problems, "actor is required")
	}
	return invalid(problems)
}

// TransferRequest moves an admission to another bed. A NewWardCategory that
// differs from the current one goes through the allocator unless NewBedID
// names the destination explicitly.
type TransferRequest struct {
	NewBedID        *uuid.UUID       `json:"new_bed_id,omitempty"`
	NewWardCategory bed.WardCategory `json:"new_ward_category,omitempty"`
	Reason          string           `json:"reason"`
	Actor           string           `json:"-"`
}

func (r *TransferRequest) Validate() error {
	var problems []string
	if r.NewWardCategory != "" && !r.NewWardCategory.Valid() {
		problems = append(problems, fmt.Sprintf("invalid new_ward_category %q", r.NewWardCategory))
	}
	if r.NewBedID != nil && *r.NewBedID == uuid.Nil {
		problems = append(problems, "new_bed_id must not be the nil uuid")
	}
	if strings.TrimSpace(r.Reason) == "" {
		problems = append(problems, "reason is required")
	}
	if r.Actor == "" {
		problems = append(problems, "actor is required")
	}
	return invalid(problems)
}

type DischargeRequest struct {
	DischargeType DischargeType    `json:"discharge_type"`
	Summary       DischargeSummary `json:"discharge_summary"`
	Notes         string           `json:"discharge_notes,omitempty"`
	Actor         string           `json:"-"`
}

func (r *DischargeRequest) Validate() error {
	var problems []string
	if !r.DischargeType.Valid() {
		problems = append(problems, fmt.Sprintf("invalid discharge_type %q", r.DischargeType))
	}
	if !r.Summary.Outcome.Valid() {
		problems = append(problems, fmt.Sprintf("invalid outcome %q", r.Summary.Outcome))
	}
	for i, m := range r.Summary.Medications {
		if m.MedicationID == "" || m.Dosage == "" || m.Frequency == "" || m.Duration == "" {
			problems = append(problems, fmt.Sprintf("medications_on_discharge[%d] is incomplete", i))
		}
	}
	if r.Actor == "" {
		problems = append(problems, "actor is required")
	}
	return invalid(problems)
}

// UpdateRequest edits the clinical header of an active admission. Bed,
// ward and status change only through transfer and discharge.
type UpdateRequest struct {
	Diagnosis *string    `json:"diagnosis,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Actor     string     `json:"-"`
}

func (r *UpdateRequest) Validate() error {
	var problems []string
	if r.Diagnosis != nil && strings.TrimSpace(*r.Diagnosis) == "" {
		problems = append(problems, "diagnosis must not be empty")
	}
	if r.Priority != nil && !r.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("invalid priority %q", *r.Priority))
	}
	if r.DoctorID != nil && *r.DoctorID == uuid.Nil {
		problems = append(problems, "doctor_id must not be the nil uuid")
	}
	if r.Actor == "" {
		problems = append(problems, "actor is required")
	}
	return invalid(problems)
}

type ListFilter struct {
	Status       Status
	WardCategory bed.WardCategory
	PatientID    *uuid.UUID
}

// -- Helpers --

// FormatAdmissionNumber renders IPD<year><6-digit sequence>.
func FormatAdmissionNumber(year, seq int) string {
	return fmt.Sprintf("IPD%d%06d", year, seq)
}

// LengthOfStay counts started days between admission and discharge.
func LengthOfStay(admittedAt, dischargedAt time.Time) int {
	d := dischargedAt.Sub(admittedAt)
	if d <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}
