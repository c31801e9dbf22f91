package admission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ipd/internal/domain/medication"
)

// DischargeResult is what a discharge produced. PrescriptionFailures lists
// discharge medications the pharmacy did not accept; the admission itself
// is closed regardless, so an operator must reconcile them.
type DischargeResult struct {
	Admission            *Admission                 `json:"admission"`
	Prescriptions        []*medication.Prescription `json:"prescriptions"`
	PrescriptionFailures []PrescriptionFailure      `json:"prescription_failures,omitempty"`

	deferred []*medication.Prescription
}

type PrescriptionFailure struct {
	MedicationID string `json:"medication_id"`
	Error        string `json:"error"`
}

// Finalizer closes an admission, frees its bed and issues the discharge
// prescriptions. When the prescription service writes through the same
// database transaction, a failed prescription rolls the discharge back.
// Otherwise prescriptions are issued after commit and failures are reported.
type Finalizer struct {
	repo          Repository
	beds          BedStore
	prescriptions medication.PrescriptionService
}

func NewFinalizer(repo Repository, beds BedStore, prescriptions medication.PrescriptionService) *Finalizer {
	return &Finalizer{repo: repo, beds: beds, prescriptions: prescriptions}
}

// Close must run inside the caller's transaction with adm locked for update.
func (f *Finalizer) Close(ctx context.Context, adm *Admission, req DischargeRequest, now time.Time) (*DischargeResult, error) {
	if adm.Status == StatusDischarged {
		return nil, &Error{Kind: ErrAlreadyDischarged, AdmissionID: adm.ID, PatientID: adm.PatientID}
	}

	los := LengthOfStay(adm.AdmittedAt, now)
	dtype := req.DischargeType
	summary := req.Summary
	actor := req.Actor
	adm.Status = StatusDischarged
	adm.DischargedAt = &now
	adm.DischargedBy = &actor
	adm.DischargeType = &dtype
	adm.DischargeSummary = &summary
	adm.LengthOfStayDays = &los
	if req.Notes != "" {
		notes := req.Notes
		adm.DischargeNotes = &notes
	}

	if err := f.repo.Update(ctx, adm); err != nil {
		return nil, storage("update admission", err)
	}
	// The bed reference stays on the row for history; only its status flips.
	if err := f.beds.MarkAvailable(ctx, adm.BedID); err != nil {
		return nil, storage("free bed", err)
	}

	result := &DischargeResult{Admission: adm, Prescriptions: []*medication.Prescription{}}
	orders := f.orders(adm, now)
	if !medication.IsTransactional(f.prescriptions) {
		result.deferred = orders
		return result, nil
	}
	for _, p := range orders {
		if err := f.prescriptions.CreatePrescription(ctx, p); err != nil {
			return nil, storage("create prescription "+p.MedicationID, err)
		}
		result.Prescriptions = append(result.Prescriptions, p)
	}
	return result, nil
}

// IssueDeferred sends the prescriptions Close could not create inside the
// transaction. It runs after commit and never fails the discharge.
func (f *Finalizer) IssueDeferred(ctx context.Context, result *DischargeResult) {
	for _, p := range result.deferred {
		if err := f.prescriptions.CreatePrescription(ctx, p); err != nil {
			result.PrescriptionFailures = append(result.PrescriptionFailures, PrescriptionFailure{
				MedicationID: p.MedicationID,
				Error:        err.Error(),
			})
			continue
		}
		result.Prescriptions = append(result.Prescriptions, p)
	}
	result.deferred = nil
}

func (f *Finalizer) orders(adm *Admission, now time.Time) []*medication.Prescription {
	if f.prescriptions == nil || adm.DischargeSummary == nil {
		return nil
	}
	out := make([]*medication.Prescription, 0, len(adm.DischargeSummary.Medications))
	for _, m := range adm.DischargeSummary.Medications {
		admissionID := adm.ID
		out = append(out, &medication.Prescription{
			ID:           uuid.New(),
			PatientID:    adm.PatientID,
			DoctorID:     adm.DoctorID,
			AdmissionID:  &admissionID,
			MedicationID: m.MedicationID,
			Dosage:       m.Dosage,
			Frequency:    m.Frequency,
			Duration:     m.Duration,
			Status:       medication.StatusActive,
			CreatedAt:    now,
		})
	}
	return out
}
