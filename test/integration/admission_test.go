//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/domain/bed"
	"github.com/ehr/ipd/internal/domain/clinical"
	"github.com/ehr/ipd/internal/domain/reporting"
)

func TestConcurrentAdmit_LastBedGoesToExactlyOne(t *testing.T) {
	tenant := newTenant(t, "lastbed")
	beds := seedBeds(t, tenant, bed.CategoryICU, 1)
	svc := newAdmissionService()

	const contenders = 6
	patients := make([]uuid.UUID, contenders)
	for i := range patients {
		patients[i] = seedPatient(t, tenant)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []*admission.Admission
		noBed    int
	)
	start := make(chan struct{})
	for _, pid := range patients {
		wg.Add(1)
		go func(pid uuid.UUID) {
			defer wg.Done()
			<-start
			var adm *admission.Admission
			err := inTenant(tenant, func(ctx context.Context) error {
				var err error
				adm, err = svc.Admit(ctx, admitRequest(pid, bed.CategoryICU))
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted = append(admitted, adm)
			case errors.Is(err, admission.ErrNoBedAvailable):
				noBed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(pid)
	}
	close(start)
	wg.Wait()

	require.Len(t, admitted, 1)
	assert.Equal(t, contenders-1, noBed)
	assert.Equal(t, beds[0], admitted[0].BedID)
	assert.Equal(t, bed.StatusOccupied, bedStatus(t, tenant, beds[0]))
	assert.Equal(t, 1, countRows(t, tenant, `SELECT COUNT(*) FROM admission`))
	// Losers never consume a number.
	assert.Equal(t, 1, countRows(t, tenant, `SELECT last_value FROM admission_sequence`))
}

func TestConcurrentAdmit_SamePatientHoldsOneBed(t *testing.T) {
	tenant := newTenant(t, "samepat")
	seedBeds(t, tenant, bed.CategoryGeneral, 4)
	patient := seedPatient(t, tenant)
	svc := newAdmissionService()

	var (
		wg        sync.WaitGroup
		succeeded int
		duplicate int
		mu        sync.Mutex
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inTenant(tenant, func(ctx context.Context) error {
				_, err := svc.Admit(ctx, admitRequest(patient, bed.CategoryGeneral))
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, admission.ErrAlreadyAdmitted):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, duplicate)
	assert.Equal(t, 1, countRows(t, tenant, `SELECT COUNT(*) FROM bed WHERE status = 'OCCUPIED'`))
	assert.Equal(t, 1, countRows(t, tenant, `SELECT COUNT(*) FROM admission WHERE patient_id = $1`, patient))
}

func TestConcurrentAdmit_NumbersAreUniqueAndDense(t *testing.T) {
	tenant := newTenant(t, "numbers")
	const n = 12
	seedBeds(t, tenant, bed.CategoryGeneral, n)
	svc := newAdmissionService()

	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		pid := seedPatient(t, tenant)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inTenant(tenant, func(ctx context.Context) error {
				adm, err := svc.Admit(ctx, admitRequest(pid, bed.CategoryGeneral))
				if err != nil {
					return err
				}
				numbers <- adm.AdmissionNumber
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(numbers)

	year := time.Now().UTC().Year()
	seen := make(map[string]bool, n)
	for num := range numbers {
		assert.False(t, seen[num], "duplicate admission number %s", num)
		seen[num] = true
	}
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("IPD%d%06d", year, i)], "missing sequence %d", i)
	}
}

func TestLifecycle_TransferDischargeReadmit(t *testing.T) {
	tenant := newTenant(t, "lifecycle")
	generalBeds := seedBeds(t, tenant, bed.CategoryGeneral, 2)
	icuBeds := seedBeds(t, tenant, bed.CategoryICU, 1)
	patient := seedPatient(t, tenant)
	svc := newAdmissionService()

	var adm *admission.Admission
	err := inTenant(tenant, func(ctx context.Context) error {
		var err error
		adm, err = svc.Admit(ctx, admitRequest(patient, bed.CategoryGeneral))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, generalBeds[0], adm.BedID)

	err = inTenant(tenant, func(ctx context.Context) error {
		moved, err := svc.Transfer(ctx, adm.ID, admission.TransferRequest{
			NewWardCategory: bed.CategoryICU,
			Reason:          "desaturation",
			Actor:           "dr-integration",
		})
		if err != nil {
			return err
		}
		assert.Equal(t, icuBeds[0], moved.BedID)
		assert.Equal(t, admission.StatusTransferred, moved.Status)
		require.Len(t, moved.Transfers, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, bed.StatusAvailable, bedStatus(t, tenant, generalBeds[0]))
	assert.Equal(t, bed.StatusOccupied, bedStatus(t, tenant, icuBeds[0]))

	var result *admission.DischargeResult
	err = inTenant(tenant, func(ctx context.Context) error {
		var err error
		result, err = svc.Discharge(ctx, adm.ID, admission.DischargeRequest{
			DischargeType: admission.DischargeRegular,
			Summary: admission.DischargeSummary{
				FinalDiagnoses: []string{"pneumonia, resolved"},
				TreatmentGiven: "IV antibiotics",
				Outcome:        admission.OutcomeCured,
				Medications: []admission.DischargeMedication{
					{MedicationID: "amoxicillin", Dosage: "500mg", Frequency: "TID", Duration: "7 days"},
					{MedicationID: "paracetamol", Dosage: "1g", Frequency: "PRN", Duration: "5 days"},
				},
			},
			Actor: "dr-integration",
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, admission.StatusDischarged, result.Admission.Status)
	require.NotNil(t, result.Admission.LengthOfStayDays)
	// Any started day counts.
	assert.Equal(t, 1, *result.Admission.LengthOfStayDays)
	assert.Len(t, result.Prescriptions, 2)
	assert.Empty(t, result.PrescriptionFailures)
	assert.Equal(t, bed.StatusAvailable, bedStatus(t, tenant, icuBeds[0]))
	assert.Equal(t, 2, countRows(t, tenant, `SELECT COUNT(*) FROM prescription WHERE admission_id = $1 AND status = 'ACTIVE'`, adm.ID))

	err = inTenant(tenant, func(ctx context.Context) error {
		_, err := svc.Discharge(ctx, adm.ID, admission.DischargeRequest{
			DischargeType: admission.DischargeRegular,
			Summary:       admission.DischargeSummary{Outcome: admission.OutcomeCured},
			Actor:         "dr-integration",
		})
		return err
	})
	assert.ErrorIs(t, err, admission.ErrAlreadyDischarged)

	err = inTenant(tenant, func(ctx context.Context) error {
		again, err := svc.Admit(ctx, admitRequest(patient, bed.CategoryGeneral))
		if err != nil {
			return err
		}
		assert.NotEqual(t, adm.AdmissionNumber, again.AdmissionNumber)
		return nil
	})
	require.NoError(t, err)

	// Every state change wrote an audit row.
	assert.GreaterOrEqual(t, countRows(t, tenant, `SELECT COUNT(*) FROM audit_event`), 4)
}

func TestDischarge_InvalidPrescriptionRollsBack(t *testing.T) {
	tenant := newTenant(t, "rollback")
	beds := seedBeds(t, tenant, bed.CategoryPrivate, 1)
	patient := seedPatient(t, tenant)
	svc := newAdmissionService()

	var adm *admission.Admission
	require.NoError(t, inTenant(tenant, func(ctx context.Context) error {
		var err error
		adm, err = svc.Admit(ctx, admitRequest(patient, bed.CategoryPrivate))
		return err
	}))

	// A unique index on (admission_id, medication_id) makes the second insert
	// fail inside the discharge transaction.
	mustExec(t, tenant, `CREATE UNIQUE INDEX prescription_one_per_med ON prescription (admission_id, medication_id)`)

	err := inTenant(tenant, func(ctx context.Context) error {
		_, err := svc.Discharge(ctx, adm.ID, admission.DischargeRequest{
			DischargeType: admission.DischargeRegular,
			Summary: admission.DischargeSummary{
				Outcome: admission.OutcomeImproved,
				Medications: []admission.DischargeMedication{
					{MedicationID: "metformin", Dosage: "500mg", Frequency: "BID", Duration: "30 days"},
					{MedicationID: "metformin", Dosage: "850mg", Frequency: "BID", Duration: "30 days"},
				},
			},
			Actor: "dr-integration",
		})
		return err
	})
	var storageErr *admission.StorageError
	require.ErrorAs(t, err, &storageErr)

	assert.Equal(t, bed.StatusOccupied, bedStatus(t, tenant, beds[0]))
	assert.Equal(t, 0, countRows(t, tenant, `SELECT COUNT(*) FROM prescription`))
	assert.Equal(t, 1, countRows(t, tenant, `SELECT COUNT(*) FROM admission WHERE status = 'ADMITTED'`))
}

func TestClinicalAppends_RaceWithDischarge(t *testing.T) {
	tenant := newTenant(t, "appends")
	seedBeds(t, tenant, bed.CategoryCCU, 1)
	patient := seedPatient(t, tenant)
	svc := newAdmissionService()
	rec := newClinicalRecorder()

	var adm *admission.Admission
	require.NoError(t, inTenant(tenant, func(ctx context.Context) error {
		var err error
		adm, err = svc.Admit(ctx, admitRequest(patient, bed.CategoryCCU))
		return err
	}))

	const writers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		alerts   int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hr := 70 + i*5
			err := inTenant(tenant, func(ctx context.Context) error {
				alert, err := rec.RecordVitals(ctx, adm.ID, &clinical.VitalSigns{RecordedBy: "nurse-joy", HeartRate: &hr})
				if err == nil && alert != nil {
					mu.Lock()
					alerts++
					mu.Unlock()
				}
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, admission.ErrNotCurrentlyAdmitted):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
		if i == writers/2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := inTenant(tenant, func(ctx context.Context) error {
					_, err := svc.Discharge(ctx, adm.ID, admission.DischargeRequest{
						DischargeType: admission.DischargeRegular,
						Summary:       admission.DischargeSummary{Outcome: admission.OutcomeUnchanged},
						Actor:         "dr-integration",
					})
					return err
				})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	// Every accepted reading is persisted and none landed after discharge.
	assert.Equal(t, accepted, countRows(t, tenant, `SELECT COUNT(*) FROM vital_sign WHERE admission_id = $1`, adm.ID))
	assert.Equal(t, 0, countRows(t, tenant, `
		SELECT COUNT(*) FROM vital_sign v JOIN admission a ON a.id = v.admission_id
		WHERE a.id = $1 AND v.recorded_at > a.discharged_at`, adm.ID))
	assert.Equal(t, alerts, countRows(t, tenant, `SELECT COUNT(*) FROM vital_sign WHERE admission_id = $1 AND alert_raised`, adm.ID))
}

func TestProgressNotes_ConcurrentAppendsKeepLatest(t *testing.T) {
	tenant := newTenant(t, "notes")
	seedBeds(t, tenant, bed.CategoryGeneral, 1)
	patient := seedPatient(t, tenant)
	svc := newAdmissionService()
	rec := newClinicalRecorder()

	var adm *admission.Admission
	require.NoError(t, inTenant(tenant, func(ctx context.Context) error {
		var err error
		adm, err = svc.Admit(ctx, admitRequest(patient, bed.CategoryGeneral))
		return err
	}))

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := inTenant(tenant, func(ctx context.Context) error {
				return rec.AddProgressNote(ctx, adm.ID, &clinical.ProgressNote{
					Author:     "dr-integration",
					Category:   clinical.NoteDaily,
					Assessment: fmt.Sprintf("round %d", i),
				})
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, countRows(t, tenant, `SELECT COUNT(*) FROM progress_note WHERE admission_id = $1`, adm.ID))
	assert.Equal(t, 1, countRows(t, tenant, `
		SELECT COUNT(*) FROM admission a
		WHERE a.id = $1 AND a.last_progress_note_at = (SELECT MAX(recorded_at) FROM progress_note WHERE admission_id = a.id)`, adm.ID))
}

func TestReporting_AgainstLiveData(t *testing.T) {
	tenant := newTenant(t, "reports")
	seedBeds(t, tenant, bed.CategoryGeneral, 4)
	seedBeds(t, tenant, bed.CategoryNICU, 1)
	svc := newAdmissionService()
	reports := reporting.NewService(reporting.NewRepoPG(globalPool))

	var first *admission.Admission
	for i := 0; i < 3; i++ {
		pid := seedPatient(t, tenant)
		require.NoError(t, inTenant(tenant, func(ctx context.Context) error {
			adm, err := svc.Admit(ctx, admitRequest(pid, bed.CategoryGeneral))
			if first == nil {
				first = adm
			}
			return err
		}))
	}
	require.NoError(t, inTenant(tenant, func(ctx context.Context) error {
		_, err := svc.Discharge(ctx, first.ID, admission.DischargeRequest{
			DischargeType: admission.DischargeRegular,
			Summary:       admission.DischargeSummary{Outcome: admission.OutcomeCured},
			Actor:         "dr-integration",
		})
		return err
	}))

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	require.NoError(t, inTenant(tenant, func(ctx context.Context) error {
		wards, err := reports.BedAvailabilityByWard(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, reporting.WardAvailability{WardCategory: bed.CategoryGeneral, Total: 4, Available: 2, Occupied: 2}, wards[0])
		assert.Equal(t, reporting.WardAvailability{WardCategory: bed.CategoryNICU, Total: 1, Available: 1}, wards[4])

		again, err := reports.BedAvailabilityByWard(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, wards, again, "availability is stable without intervening mutations")

		m, err := reports.PerformanceMetrics(ctx, from, to)
		if err != nil {
			return err
		}
		assert.Equal(t, 3, m.Admissions)
		assert.Equal(t, 1, m.Discharges)
		assert.Equal(t, 1.0, m.AverageLengthOfStayDays)
		assert.Equal(t, 0.4, m.BedOccupancyRate)
		assert.Equal(t, 1, m.Outcomes[admission.OutcomeCured])
		return nil
	}))
}
