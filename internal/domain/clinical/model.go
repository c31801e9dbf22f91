// Package clinical records the clinical trail of an active admission:
// progress notes, nursing notes and vital-sign readings, with threshold
// alerts raised from vitals.
package clinical

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/domain/bed"
)

type NoteCategory string

const (
	NoteDaily                  NoteCategory = "DAILY"
	NoteSpecialistConsultation NoteCategory = "SPECIALIST_CONSULTATION"
	NoteProcedure              NoteCategory = "PROCEDURE"
	NoteComplication           NoteCategory = "COMPLICATION"
	NoteImprovement            NoteCategory = "IMPROVEMENT"
)

func (c NoteCategory) Valid() bool {
	switch c {
	case NoteDaily, NoteSpecialistConsultation, NoteProcedure, NoteComplication, NoteImprovement:
		return true
	}
	return false
}

type Shift string

const (
	ShiftMorning Shift = "MORNING"
	ShiftEvening Shift = "EVENING"
	ShiftNight   Shift = "NIGHT"
)

func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftEvening || s == ShiftNight
}

type ConsciousnessLevel string

const (
	ConsciousAlert     ConsciousnessLevel = "ALERT"
	ConsciousConfused  ConsciousnessLevel = "CONFUSED"
	ConsciousStuporous ConsciousnessLevel = "STUPOROUS"
	ConsciousComatose  ConsciousnessLevel = "COMATOSE"
)

func (l ConsciousnessLevel) Valid() bool {
	switch l {
	case ConsciousAlert, ConsciousConfused, ConsciousStuporous, ConsciousComatose:
		return true
	}
	return false
}

// ProgressNote is a physician's SOAP note. Immutable once recorded.
type ProgressNote struct {
	ID           uuid.UUID    `json:"id"`
	AdmissionID  uuid.UUID    `json:"admission_id"`
	Author       string       `json:"author"`
	Category     NoteCategory `json:"category"`
	Subjective   string       `json:"subjective,omitempty"`
	Objective    string       `json:"objective,omitempty"`
	Assessment   string       `json:"assessment,omitempty"`
	Plan         string       `json:"plan,omitempty"`
	NewOrders    string       `json:"new_orders,omitempty"`
	FollowUpDate *time.Time   `json:"follow_up_date,omitempty"`
	IsPrivate    bool         `json:"is_private"`
	RecordedAt   time.Time    `json:"recorded_at"`
}

func (n *ProgressNote) Validate() error {
	var problems []string
	if !n.Category.Valid() {
		problems = append(problems, fmt.Sprintf("invalid category %q", n.Category))
	}
	if strings.TrimSpace(n.Subjective+n.Objective+n.Assessment+n.Plan) == "" {
		problems = append(problems, "at least one SOAP section is required")
	}
	if n.Author == "" {
		problems = append(problems, "author is required")
	}
	return invalid(problems)
}

// NursingNote is a per-shift nursing entry. Immutable once recorded.
type NursingNote struct {
	ID              uuid.UUID `json:"id"`
	AdmissionID     uuid.UUID `json:"admission_id"`
	Author          string    `json:"author"`
	Shift           Shift     `json:"shift"`
	CareActivities  []string  `json:"care_activities"`
	Observations    string    `json:"observations,omitempty"`
	Interventions   []string  `json:"interventions"`
	PatientResponse string    `json:"patient_response,omitempty"`
	Handoff         string    `json:"handoff,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func (n *NursingNote) Validate() error {
	var problems []string
	if !n.Shift.Valid() {
		problems = append(problems, fmt.Sprintf("invalid shift %q", n.Shift))
	}
	if n.Author == "" {
		problems = append(problems, "author is required")
	}
	if n.CareActivities == nil {
		n.CareActivities = []string{}
	}
	if n.Interventions == nil {
		n.Interventions = []string{}
	}
	return invalid(problems)
}

// VitalSigns is one reading. Any subset of measurements may be present.
type VitalSigns struct {
	ID                 uuid.UUID          `json:"id"`
	AdmissionID        uuid.UUID          `json:"admission_id"`
	RecordedBy         string             `json:"recorded_by"`
	RecordedAt         time.Time          `json:"recorded_at"`
	Systolic           *int               `json:"systolic,omitempty"`
	Diastolic          *int               `json:"diastolic,omitempty"`
	HeartRate          *int               `json:"heart_rate,omitempty"`
	TemperatureF       *float64           `json:"temperature_f,omitempty"`
	RespiratoryRate    *int               `json:"respiratory_rate,omitempty"`
	OxygenSaturation   *float64           `json:"oxygen_saturation,omitempty"`
	WeightKg           *float64           `json:"weight_kg,omitempty"`
	HeightCm           *float64           `json:"height_cm,omitempty"`
	PainScore          *int               `json:"pain_score,omitempty"`
	ConsciousnessLevel ConsciousnessLevel `json:"consciousness_level,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	AlertRaised        bool               `json:"alert_raised"`
}

// Plausibility limits for a single reading. Each fits its vital_sign column.
const (
	maxBloodPressure   = 400
	maxHeartRate       = 400
	maxRespiratoryRate = 150
	minTemperatureF    = 50.0
	maxTemperatureF    = 115.0
	maxWeightKg        = 700.0
	maxHeightCm        = 300.0
)

func (v *VitalSigns) Validate() error {
	var problems []string
	if v.Systolic == nil && v.Diastolic == nil && v.HeartRate == nil && v.TemperatureF == nil &&
		v.RespiratoryRate == nil && v.OxygenSaturation == nil && v.WeightKg == nil &&
		v.HeightCm == nil && v.PainScore == nil && v.ConsciousnessLevel == "" {
		problems = append(problems, "at least one measurement is required")
	}
	if (v.Systolic == nil) != (v.Diastolic == nil) {
		problems = append(problems, "systolic and diastolic must be given together")
	}
	if v.Systolic != nil && v.Diastolic != nil {
		if *v.Systolic <= 0 || *v.Systolic > maxBloodPressure || *v.Diastolic <= 0 || *v.Diastolic > maxBloodPressure {
			problems = append(problems, fmt.Sprintf("blood pressure must be between 1 and %d mmHg", maxBloodPressure))
		}
	}
	// Zero is a valid reading for heart and respiratory rate (arrest, apnea).
	if v.HeartRate != nil && (*v.HeartRate < 0 || *v.HeartRate > maxHeartRate) {
		problems = append(problems, fmt.Sprintf("heart_rate must be between 0 and %d", maxHeartRate))
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 0 || *v.RespiratoryRate > maxRespiratoryRate) {
		problems = append(problems, fmt.Sprintf("respiratory_rate must be between 0 and %d", maxRespiratoryRate))
	}
	if v.TemperatureF != nil && (*v.TemperatureF < minTemperatureF || *v.TemperatureF > maxTemperatureF) {
		problems = append(problems, fmt.Sprintf("temperature_f must be between %g and %g", minTemperatureF, maxTemperatureF))
	}
	if v.WeightKg != nil && (*v.WeightKg <= 0 || *v.WeightKg > maxWeightKg) {
		problems = append(problems, fmt.Sprintf("weight_kg must be greater than 0 and at most %g", maxWeightKg))
	}
	if v.HeightCm != nil && (*v.HeightCm <= 0 || *v.HeightCm > maxHeightCm) {
		problems = append(problems, fmt.Sprintf("height_cm must be greater than 0 and at most %g", maxHeightCm))
	}
	if v.OxygenSaturation != nil && (*v.OxygenSaturation < 0 || *v.OxygenSaturation > 100) {
		problems = append(problems, "oxygen_saturation must be between 0 and 100")
	}
	if v.PainScore != nil && (*v.PainScore < 0 || *v.PainScore > 10) {
		problems = append(problems, "pain_score must be between 0 and 10")
	}
	if v.ConsciousnessLevel != "" && !v.ConsciousnessLevel.Valid() {
		problems = append(problems, fmt.Sprintf("invalid consciousness_level %q", v.ConsciousnessLevel))
	}
	if v.RecordedBy == "" {
		problems = append(problems, "recorded_by is required")
	}
	return invalid(problems)
}

// AdmissionRef is the slice of an admission the recorder needs to decide
// whether an entry may be appended.
type AdmissionRef struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	BedID        uuid.UUID
	WardCategory bed.WardCategory
	Status       admission.Status
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &admission.Error{Kind: admission.ErrInvalidInput, Detail: strings.Join(problems, "; ")}
}
