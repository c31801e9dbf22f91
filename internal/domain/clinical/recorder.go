package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/platform/db"
	"github.com/ehr/ipd/internal/platform/hipaa"
	"github.com/ehr/ipd/internal/platform/notification"
	"github.com/ehr/ipd/internal/platform/telemetry"
)

const (
	resourceAdmission = "admission"

	// EventClinicalAlert is the notification type for vitals alerts.
	EventClinicalAlert = "clinical_alert"

	defaultVitalsLimit = 50
)

// Recorder appends to the clinical trail of active admissions. Bed
// occupancy is never touched here.
type Recorder struct {
	repo    Repository
	tx      db.Transactor
	audit   *hipaa.Recorder
	alerts  *notification.Fanout
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewRecorder(repo Repository, tx db.Transactor, logger zerolog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "clinical").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) SetAuditRecorder(a *hipaa.Recorder) { r.audit = a }

// SetAlertPublisher adds best-effort delivery of clinical alerts on top of
// the audit sink.
func (r *Recorder) SetAlertPublisher(f *notification.Fanout) { r.alerts = f }

func (r *Recorder) SetMetrics(m *telemetry.Metrics) { r.metrics = m }

func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// appendEntry runs insert inside a transaction that holds a lock on the
// admission, failing when it is unknown or already discharged.
func (r *Recorder) appendEntry(ctx context.Context, id uuid.UUID, exclusive bool, insert func(ctx context.Context, ref *AdmissionRef) error) (*AdmissionRef, error) {
	var ref *AdmissionRef
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		ref, err = r.repo.LockAdmission(ctx, id, exclusive)
		if err != nil {
			return storage("lock admission", err)
		}
		if !ref.Status.Active() {
			return &admission.Error{Kind: admission.ErrNotCurrentlyAdmitted, AdmissionID: id, PatientID: ref.PatientID}
		}
		return storage("append clinical entry", insert(ctx, ref))
	})
	return ref, err
}

func (r *Recorder) AddProgressNote(ctx context.Context, admissionID uuid.UUID, n *ProgressNote) error {
	if err := n.Validate(); err != nil {
		return err
	}
	n.ID = uuid.New()
	n.AdmissionID = admissionID
	n.RecordedAt = r.now()

	ref, err := r.appendEntry(ctx, admissionID, true, func(ctx context.Context, _ *AdmissionRef) error {
		return r.repo.AddProgressNote(ctx, n)
	})
	if err != nil {
		return err
	}

	r.audit.Record(ctx, hipaa.NewEvent(n.Author, hipaa.ActionProgressNote, resourceAdmission, admissionID.String(), map[string]any{
		"patient_id": ref.PatientID,
		"note_id":    n.ID,
		"category":   n.Category,
		"is_private": n.IsPrivate,
	}))
	return nil
}

func (r *Recorder) AddNursingNote(ctx context.Context, admissionID uuid.UUID, n *NursingNote) error {
	if err := n.Validate(); err != nil {
		return err
	}
	n.ID = uuid.New()
	n.AdmissionID = admissionID
	n.RecordedAt = r.now()

	ref, err := r.appendEntry(ctx, admissionID, false, func(ctx context.Context, _ *AdmissionRef) error {
		return r.repo.AddNursingNote(ctx, n)
	})
	if err != nil {
		return err
	}

	r.audit.Record(ctx, hipaa.NewEvent(n.Author, hipaa.ActionNursingNote, resourceAdmission, admissionID.String(), map[string]any{
		"patient_id": ref.PatientID,
		"note_id":    n.ID,
		"shift":      n.Shift,
	}))
	return nil
}

// RecordVitals stores a reading and returns the alert it raised, if any.
// All tripped thresholds of one reading share a single alert.
func (r *Recorder) RecordVitals(ctx context.Context, admissionID uuid.UUID, v *VitalSigns) (*ClinicalAlert, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.ID = uuid.New()
	v.AdmissionID = admissionID
	if v.RecordedAt.IsZero() {
		v.RecordedAt = r.now()
	}
	conditions := EvaluateVitals(v)
	v.AlertRaised = len(conditions) > 0

	ref, err := r.appendEntry(ctx, admissionID, false, func(ctx context.Context, _ *AdmissionRef) error {
		return r.repo.AddVitals(ctx, v)
	})
	if err != nil {
		return nil, err
	}

	r.audit.Record(ctx, hipaa.NewEvent(v.RecordedBy, hipaa.ActionRecordVitals, resourceAdmission, admissionID.String(), map[string]any{
		"patient_id":   ref.PatientID,
		"reading_id":   v.ID,
		"alert_raised": v.AlertRaised,
	}))
	if !v.AlertRaised {
		return nil, nil
	}

	alert := &ClinicalAlert{
		AdmissionID:  admissionID,
		PatientID:    ref.PatientID,
		BedID:        ref.BedID,
		WardCategory: string(ref.WardCategory),
		ReadingID:    v.ID,
		Conditions:   conditions,
		Vitals:       rawVitals(v),
		RaisedAt:     r.now(),
	}
	r.raise(ctx, v.RecordedBy, alert)
	return alert, nil
}

func (r *Recorder) raise(ctx context.Context, actor string, alert *ClinicalAlert) {
	r.metrics.ClinicalAlert()

	event := hipaa.NewEvent(actor, hipaa.ActionClinicalAlert, resourceAdmission, alert.AdmissionID.String(), map[string]any{
		"patient_id":    alert.PatientID,
		"bed_id":        alert.BedID,
		"ward_category": alert.WardCategory,
		"reading_id":    alert.ReadingID,
		"conditions":    alert.Conditions,
		"vitals":        alert.Vitals,
	})
	event.ComplianceFlags = append(event.ComplianceFlags, hipaa.FlagClinicalAlert)
	r.audit.Record(ctx, event)

	r.logger.Warn().
		Str("admission_id", alert.AdmissionID.String()).
		Str("patient_id", alert.PatientID.String()).
		Int("conditions", len(alert.Conditions)).
		Msg("clinical alert raised")

	if r.alerts.Len() == 0 {
		return
	}
	data, err := json.Marshal(alert)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode clinical alert")
		return
	}
	// Delivery failures are logged by the fanout; the reading is already stored.
	_ = r.alerts.Publish(ctx, notification.Event{
		Type: EventClinicalAlert,
		Key:  alert.AdmissionID.String(),
		Data: data,
		At:   alert.RaisedAt,
	})
}

func (r *Recorder) ListProgressNotes(ctx context.Context, admissionID uuid.UUID, includePrivate bool) ([]*ProgressNote, error) {
	if _, err := r.repo.GetAdmission(ctx, admissionID); err != nil {
		return nil, storage("get admission", err)
	}
	notes, err := r.repo.ListProgressNotes(ctx, admissionID, includePrivate)
	return notes, storage("list progress notes", err)
}

func (r *Recorder) ListNursingNotes(ctx context.Context, admissionID uuid.UUID) ([]*NursingNote, error) {
	if _, err := r.repo.GetAdmission(ctx, admissionID); err != nil {
		return nil, storage("get admission", err)
	}
	notes, err := r.repo.ListNursingNotes(ctx, admissionID)
	return notes, storage("list nursing notes", err)
}

func (r *Recorder) ListVitals(ctx context.Context, admissionID uuid.UUID, limit int) ([]*VitalSigns, error) {
	if limit <= 0 {
		limit = defaultVitalsLimit
	}
	if _, err := r.repo.GetAdmission(ctx, admissionID); err != nil {
		return nil, storage("get admission", err)
	}
	readings, err := r.repo.ListVitals(ctx, admissionID, limit)
	return readings, storage("list vital signs", err)
}

func storage(op string, err error) error {
	if err == nil || admission.IsDomain(err) {
		return err
	}
	var se *admission.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &admission.StorageError{Op: op, Err: err}
}
