package clinical

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert thresholds. A reading strictly outside a range trips its rule.
const (
	MinHeartRate        = 50
	MaxHeartRate        = 150
	MinTemperatureF     = 95.0
	MaxTemperatureF     = 104.0
	MinOxygenSaturation = 90.0
)

type AlertCondition struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// ClinicalAlert bundles every tripped condition of one reading.
type ClinicalAlert struct {
	AdmissionID  uuid.UUID        `json:"admission_id"`
	PatientID    uuid.UUID        `json:"patient_id"`
	BedID        uuid.UUID        `json:"bed_id"`
	WardCategory string           `json:"ward_category"`
	ReadingID    uuid.UUID        `json:"reading_id"`
	Conditions   []AlertCondition `json:"conditions"`
	Vitals       map[string]any   `json:"vitals"`
	RaisedAt     time.Time        `json:"raised_at"`
}

// EvaluateVitals returns the conditions v trips, or nil.
func EvaluateVitals(v *VitalSigns) []AlertCondition {
	var out []AlertCondition
	if v.HeartRate != nil {
		hr := float64(*v.HeartRate)
		switch {
		case *v.HeartRate < MinHeartRate:
			out = append(out, AlertCondition{"BRADYCARDIA", fmt.Sprintf("heart rate %d bpm below %d", *v.HeartRate, MinHeartRate), hr, MinHeartRate})
		case *v.HeartRate > MaxHeartRate:
			out = append(out, AlertCondition{"TACHYCARDIA", fmt.Sprintf("heart rate %d bpm above %d", *v.HeartRate, MaxHeartRate), hr, MaxHeartRate})
		}
	}
	if v.TemperatureF != nil {
		t := *v.TemperatureF
		switch {
		case t < MinTemperatureF:
			out = append(out, AlertCondition{"HYPOTHERMIA", fmt.Sprintf("temperature %.1f°F below %.0f", t, MinTemperatureF), t, MinTemperatureF})
		case t > MaxTemperatureF:
			out = append(out, AlertCondition{"HYPERPYREXIA", fmt.Sprintf("temperature %.1f°F above %.0f", t, MaxTemperatureF), t, MaxTemperatureF})
		}
	}
	if v.OxygenSaturation != nil && *v.OxygenSaturation < MinOxygenSaturation {
		s := *v.OxygenSaturation
		out = append(out, AlertCondition{"HYPOXEMIA", fmt.Sprintf("oxygen saturation %.0f%% below %.0f", s, MinOxygenSaturation), s, MinOxygenSaturation})
	}
	return out
}

// rawVitals lists the measurements present on v for the alert payload.
func rawVitals(v *VitalSigns) map[string]any {
	out := map[string]any{}
	if v.HeartRate != nil {
		out["heart_rate"] = *v.HeartRate
	}
	if v.TemperatureF != nil {
		out["temperature_f"] = *v.TemperatureF
	}
	if v.OxygenSaturation != nil {
		out["oxygen_saturation"] = *v.OxygenSaturation
	}
	if v.Systolic != nil && v.Diastolic != nil {
		out["blood_pressure"] = fmt.Sprintf("%d/%d", *v.Systolic, *v.Diastolic)
	}
	if v.RespiratoryRate != nil {
		out["respiratory_rate"] = *v.RespiratoryRate
	}
	if v.ConsciousnessLevel != "" {
		out["consciousness_level"] = v.ConsciousnessLevel
	}
	return out
}
