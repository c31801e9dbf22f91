package admission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ipd/internal/domain/bed"
	"github.com/ehr/ipd/internal/domain/identity"
	"github.com/ehr/ipd/internal/domain/medication"
	"github.com/ehr/ipd/internal/platform/db"
	"github.com/ehr/ipd/internal/platform/hipaa"
	"github.com/ehr/ipd/internal/platform/telemetry"
)

const resourceAdmission = "admission"

// Service owns the admission state machine:
// ADMITTED -> TRANSFERRED (repeatable) -> DISCHARGED.
// Every operation runs in one transaction; audit and metrics follow commit.
type Service struct {
	repo      Repository
	beds      BedStore
	allocator Allocator
	patients  identity.Directory
	tx        db.Transactor
	finalizer *Finalizer
	audit     *hipaa.Recorder
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, beds BedStore, patients identity.Directory, tx db.Transactor,
	prescriptions medication.PrescriptionService, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		beds:      beds,
		allocator: NewBedAllocator(beds),
		patients:  patients,
		tx:        tx,
		finalizer: NewFinalizer(repo, beds, prescriptions),
		logger:    logger.With().Str("component", "admission").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetAllocator replaces the default first-free-bed allocator.
func (s *Service) SetAllocator(a Allocator) { s.allocator = a }

func (s *Service) SetAuditRecorder(r *hipaa.Recorder) { s.audit = r }

func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

// SetClock overrides the wall clock, mainly for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Admit resolves the patient, claims a bed in the requested category and
// opens a new admission.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.patients.ResolvePatient(ctx, req.PatientID); err != nil {
		if errors.Is(err, identity.ErrPatientNotFound) {
			return nil, &Error{Kind: ErrPatientNotFound, PatientID: req.PatientID}
		}
		return nil, storage("resolve patient", err)
	}

	var adm *Admission
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindActiveByPatient(ctx, req.PatientID)
		if err != nil {
			return storage("find active admission", err)
		}
		if existing != nil {
			return &Error{Kind: ErrAlreadyAdmitted, PatientID: req.PatientID, AdmissionID: existing.ID}
		}

		b, err := s.allocator.Allocate(ctx, req.WardCategory)
		if err != nil {
			var de *Error
			if errors.As(err, &de) {
				de.PatientID = req.PatientID
			}
			return err
		}

		now := s.now()
		seq, err := s.repo.NextSequence(ctx, now.Year())
		if err != nil {
			return storage("next admission sequence", err)
		}

		adm = &Admission{
			ID:              uuid.New(),
			AdmissionNumber: FormatAdmissionNumber(now.Year(), seq),
			PatientID:       req.PatientID,
			DoctorID:        req.DoctorID,
			BedID:           b.ID,
			WardCategory:    req.WardCategory,
			Diagnosis:       req.Diagnosis,
			AdmissionType:   req.AdmissionType,
			Priority:        req.Priority,
			Status:          StatusAdmitted,
			Notes:           req.Notes,
			AdmittedAt:      now,
			AdmittedBy:      req.Actor,
		}
		// The admission row goes in before the bed flips, so a failure
		// between the two can never leave an orphaned occupied bed.
		if err := s.repo.Create(ctx, adm); err != nil {
			return storage("create admission", err)
		}
		if err := s.beds.MarkOccupied(ctx, b.ID); err != nil {
			return s.bedError("occupy bed", err, b.ID, req.WardCategory)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AdmissionCreated(db.TenantFromContext(ctx), string(adm.WardCategory))
	s.audit.Record(ctx, hipaa.NewEvent(req.Actor, hipaa.ActionAdmit, resourceAdmission, adm.ID.String(), map[string]any{
		"admission_number": adm.AdmissionNumber,
		"patient_id":       adm.PatientID,
		"doctor_id":        adm.DoctorID,
		"bed_id":           adm.BedID,
		"ward_category":    adm.WardCategory,
		"admission_type":   adm.AdmissionType,
		"priority":         adm.Priority,
	}))
	s.logger.Info().
		Str("admission_id", adm.ID.String()).
		Str("admission_number", adm.AdmissionNumber).
		Str("bed_id", adm.BedID.String()).
		Str("ward_category", string(adm.WardCategory)).
		Msg("patient admitted")
	return adm, nil
}

// Transfer moves an active admission to another bed or ward category and
// appends a transfer record. A transfer that changes nothing is still
// recorded and leaves bed status untouched.
func (s *Service) Transfer(ctx context.Context, id uuid.UUID, req TransferRequest) (*Admission, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var adm *Admission
	var record TransferRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		adm, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return storage("get admission", err)
		}
		if !adm.Status.Active() {
			return &Error{Kind: ErrNotCurrentlyAdmitted, AdmissionID: id, PatientID: adm.PatientID}
		}

		target := adm.WardCategory
		if req.NewWardCategory != "" {
			target = req.NewWardCategory
		}

		dest, err := s.destination(ctx, adm, target, req.NewBedID)
		if err != nil {
			return err
		}

		record = TransferRecord{
			ID:            uuid.New(),
			AdmissionID:   adm.ID,
			FromBedID:     adm.BedID,
			FromCategory:  adm.WardCategory,
			ToCategory:    target,
			Reason:        req.Reason,
			Actor:         req.Actor,
			TransferredAt: s.now(),
		}
		if dest != adm.BedID {
			to := dest
			record.ToBedID = &to
		}
		if err := s.repo.AddTransfer(ctx, &record); err != nil {
			return storage("add transfer", err)
		}

		if record.ToBedID != nil {
			if err := s.beds.MarkAvailable(ctx, adm.BedID); err != nil {
				return s.bedError("free bed", err, adm.BedID, adm.WardCategory)
			}
			if err := s.beds.MarkOccupied(ctx, dest); err != nil {
				return s.bedError("occupy bed", err, dest, target)
			}
		}

		adm.BedID = dest
		adm.WardCategory = target
		adm.Status = StatusTransferred
		if err := s.repo.Update(ctx, adm); err != nil {
			return storage("update admission", err)
		}

		adm.Transfers, err = s.repo.ListTransfers(ctx, adm.ID)
		return storage("list transfers", err)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transferred(db.TenantFromContext(ctx), string(record.FromCategory), string(record.ToCategory), record.ToBedID != nil)
	s.audit.Record(ctx, hipaa.NewEvent(req.Actor, hipaa.ActionTransfer, resourceAdmission, adm.ID.String(), map[string]any{
		"patient_id":    adm.PatientID,
		"from_bed_id":   record.FromBedID,
		"to_bed_id":     record.ToBedID,
		"from_category": record.FromCategory,
		"to_category":   record.ToCategory,
		"reason":        record.Reason,
	}))
	s.logger.Info().
		Str("admission_id", adm.ID.String()).
		Str("from_bed_id", record.FromBedID.String()).
		Str("to_bed_id", adm.BedID.String()).
		Msg("patient transferred")
	return adm, nil
}

// destination picks the bed an admission moves to. An explicit bed is
// revalidated: it must exist, be free, and sit in the target category.
// Without one, a category change goes through the allocator and an
// unchanged category keeps the current bed.
func (s *Service) destination(ctx context.Context, adm *Admission, target bed.WardCategory, explicit *uuid.UUID) (uuid.UUID, error) {
	if explicit == nil {
		if target == adm.WardCategory {
			return adm.BedID, nil
		}
		b, err := s.allocator.Allocate(ctx, target)
		if err != nil {
			var de *Error
			if errors.As(err, &de) {
				de.AdmissionID = adm.ID
				de.PatientID = adm.PatientID
			}
			return uuid.Nil, err
		}
		return b.ID, nil
	}

	bedID := *explicit
	if bedID == adm.BedID && target == adm.WardCategory {
		return bedID, nil
	}
	b, err := s.beds.GetByID(ctx, bedID)
	if errors.Is(err, bed.ErrNotFound) {
		return uuid.Nil, &Error{Kind: ErrBedUnavailable, AdmissionID: adm.ID, BedID: bedID, Detail: "bed does not exist"}
	}
	if err != nil {
		return uuid.Nil, storage("get bed", err)
	}
	if b.Category != target {
		return uuid.Nil, &Error{Kind: ErrBedUnavailable, AdmissionID: adm.ID, BedID: bedID, WardCategory: target,
			Detail: "bed belongs to ward category " + string(b.Category)}
	}
	if bedID == adm.BedID {
		return bedID, nil
	}
	if b.Status != bed.StatusAvailable {
		return uuid.Nil, &Error{Kind: ErrBedUnavailable, AdmissionID: adm.ID, BedID: bedID, WardCategory: target,
			Detail: "bed is occupied"}
	}
	return bedID, nil
}

func (s *Service) bedError(op string, err error, bedID uuid.UUID, category bed.WardCategory) error {
	switch {
	case errors.Is(err, bed.ErrNotAvailable):
		return &Error{Kind: ErrBedUnavailable, BedID: bedID, WardCategory: category, Detail: "bed was claimed concurrently"}
	case errors.Is(err, bed.ErrNotFound):
		return &Error{Kind: ErrBedUnavailable, BedID: bedID, WardCategory: category, Detail: "bed does not exist"}
	}
	return storage(op, err)
}

// Discharge closes the admission through the finalizer. See Finalizer for
// how prescription failures are handled.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID, req DischargeRequest) (*DischargeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *DischargeResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		adm, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return storage("get admission", err)
		}
		result, err = s.finalizer.Close(ctx, adm, req, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.finalizer.IssueDeferred(ctx, result)

	adm := result.Admission
	for _, f := range result.PrescriptionFailures {
		s.logger.Error().
			Str("admission_id", adm.ID.String()).
			Str("patient_id", adm.PatientID.String()).
			Str("medication_id", f.MedicationID).
			Str("error", f.Error).
			Msg("discharge prescription not created")
	}

	s.metrics.Discharged(db.TenantFromContext(ctx), string(adm.WardCategory), string(req.DischargeType))
	s.audit.Record(ctx, hipaa.NewEvent(req.Actor, hipaa.ActionDischarge, resourceAdmission, adm.ID.String(), map[string]any{
		"patient_id":            adm.PatientID,
		"bed_id":                adm.BedID,
		"discharge_type":        req.DischargeType,
		"outcome":               req.Summary.Outcome,
		"length_of_stay_days":   adm.LengthOfStayDays,
		"prescriptions_created": len(result.Prescriptions),
		"prescriptions_failed":  len(result.PrescriptionFailures),
	}))
	s.logger.Info().
		Str("admission_id", adm.ID.String()).
		Int("length_of_stay_days", *adm.LengthOfStayDays).
		Msg("patient discharged")
	return result, nil
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	adm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storage("get admission", err)
	}
	adm.Transfers, err = s.repo.ListTransfers(ctx, id)
	if err != nil {
		return nil, storage("list transfers", err)
	}
	return adm, nil
}

func (s *Service) GetTransfers(ctx context.Context, id uuid.UUID) ([]TransferRecord, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, storage("get admission", err)
	}
	out, err := s.repo.ListTransfers(ctx, id)
	return out, storage("list transfers", err)
}

// UpdateAdmission edits diagnosis, priority, doctor or notes of an active
// admission.
func (s *Service) UpdateAdmission(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Admission, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var adm *Admission
	changed := map[string]any{}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		adm, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return storage("get admission", err)
		}
		if !adm.Status.Active() {
			return &Error{Kind: ErrNotCurrentlyAdmitted, AdmissionID: id, PatientID: adm.PatientID}
		}
		if req.Diagnosis != nil {
			adm.Diagnosis = *req.Diagnosis
			changed["diagnosis"] = adm.Diagnosis
		}
		if req.Priority != nil {
			adm.Priority = *req.Priority
			changed["priority"] = adm.Priority
		}
		if req.DoctorID != nil {
			adm.DoctorID = *req.DoctorID
			changed["doctor_id"] = adm.DoctorID
		}
		if req.Notes != nil {
			adm.Notes = *req.Notes
			changed["notes"] = true
		}
		return storage("update admission", s.repo.Update(ctx, adm))
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, hipaa.NewEvent(req.Actor, hipaa.ActionUpdate, resourceAdmission, adm.ID.String(), changed))
	return adm, nil
}

func (s *Service) ListAdmissions(ctx context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &Error{Kind: ErrInvalidInput, Detail: "invalid status " + string(f.Status)}
	}
	if f.WardCategory != "" && !f.WardCategory.Valid() {
		return nil, 0, &Error{Kind: ErrInvalidInput, Detail: "invalid ward_category " + string(f.WardCategory)}
	}
	out, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, storage("list admissions", err)
	}
	return out, total, nil
}
