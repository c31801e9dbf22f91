package admission

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ipd/internal/domain/bed"
	"github.com/ehr/ipd/internal/domain/identity"
	"github.com/ehr/ipd/internal/domain/medication"
	"github.com/ehr/ipd/internal/platform/hipaa"
)

// -- In-memory store --

// memStore implements Repository and BedStore over maps. memTx serializes
// transactions and restores a snapshot when fn fails, which is enough to
// stand in for row locks and rollback in unit tests.
type memStore struct {
	mu         sync.Mutex
	admissions map[uuid.UUID]Admission
	beds       map[uuid.UUID]bed.Bed
	transfers  []TransferRecord
	seq        map[int]int
	failUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		admissions: make(map[uuid.UUID]Admission),
		beds:       make(map[uuid.UUID]bed.Bed),
		seq:        make(map[int]int),
	}
}

type memSnapshot struct {
	admissions map[uuid.UUID]Admission
	beds       map[uuid.UUID]bed.Bed
	transfers  []TransferRecord
	seq        map[int]int
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		admissions: make(map[uuid.UUID]Admission, len(m.admissions)),
		beds:       make(map[uuid.UUID]bed.Bed, len(m.beds)),
		transfers:  append([]TransferRecord(nil), m.transfers...),
		seq:        make(map[int]int, len(m.seq)),
	}
	for k, v := range m.admissions {
		s.admissions[k] = v
	}
	for k, v := range m.beds {
		s.beds[k] = v
	}
	for k, v := range m.seq {
		s.seq[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admissions, m.beds, m.transfers, m.seq = s.admissions, s.beds, s.transfers, s.seq
}

func (m *memStore) addBed(code string, cat bed.WardCategory) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := bed.Bed{ID: uuid.New(), Code: code, Category: cat, Status: bed.StatusAvailable}
	m.beds[b.ID] = b
	return b.ID
}

func (m *memStore) bedStatus(id uuid.UUID) bed.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beds[id].Status
}

func (m *memStore) admission(id uuid.UUID) Admission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admissions[id]
}

func (m *memStore) countAdmissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.admissions)
}

// occupancyConsistent reports whether every OCCUPIED bed is referenced by
// exactly one active admission and every AVAILABLE bed by none.
func (m *memStore) occupancyConsistent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make(map[uuid.UUID]int)
	for _, a := range m.admissions {
		if a.Status.Active() {
			refs[a.BedID]++
		}
	}
	for id, b := range m.beds {
		if b.Status == bed.StatusOccupied && refs[id] != 1 {
			return false
		}
		if b.Status == bed.StatusAvailable && refs[id] != 0 {
			return false
		}
	}
	return true
}

// Repository

func (m *memStore) NextSequence(_ context.Context, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[year]++
	return m.seq[year], nil
}

func (m *memStore) Create(_ context.Context, a *Admission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.admissions {
		if existing.PatientID == a.PatientID && existing.Status.Active() {
			return &Error{Kind: ErrAlreadyAdmitted, PatientID: a.PatientID}
		}
	}
	a.CreatedAt = a.AdmittedAt
	a.UpdatedAt = a.AdmittedAt
	cp := *a
	cp.Transfers = nil
	m.admissions[a.ID] = cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admissions[id]
	if !ok {
		return nil, &Error{Kind: ErrAdmissionNotFound, AdmissionID: id}
	}
	return &a, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return m.GetByID(ctx, id)
}

func (m *memStore) FindActiveByPatient(_ context.Context, patientID uuid.UUID) (*Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admissions {
		if a.PatientID == patientID && a.Status.Active() {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *memStore) Update(_ context.Context, a *Admission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.admissions[a.ID]; !ok {
		return &Error{Kind: ErrAdmissionNotFound, AdmissionID: a.ID}
	}
	cp := *a
	cp.Transfers = nil
	m.admissions[a.ID] = cp
	return nil
}

func (m *memStore) List(_ context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Admission
	for _, a := range m.admissions {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.WardCategory != "" && a.WardCategory != f.WardCategory {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmittedAt.After(out[j].AdmittedAt) })
	total := len(out)
	if offset >= total {
		return []*Admission{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memStore) AddTransfer(_ context.Context, t *TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, *t)
	return nil
}

func (m *memStore) ListTransfers(_ context.Context, admissionID uuid.UUID) ([]TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []TransferRecord{}
	for _, t := range m.transfers {
		if t.AdmissionID == admissionID {
			out = append(out, t)
		}
	}
	return out, nil
}

// BedStore

func (m *memStore) FindFreeBed(_ context.Context, cat bed.WardCategory) (*bed.Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var free []bed.Bed
	for _, b := range m.beds {
		if b.Category == cat && b.Status == bed.StatusAvailable {
			free = append(free, b)
		}
	}
	if len(free) == 0 {
		return nil, nil
	}
	sort.Slice(free, func(i, j int) bool { return free[i].Code < free[j].Code })
	return &free[0], nil
}

func (m *memStore) MarkOccupied(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[id]
	if !ok || b.Status != bed.StatusAvailable {
		return bed.ErrNotAvailable
	}
	b.Status = bed.StatusOccupied
	m.beds[id] = b
	return nil
}

func (m *memStore) MarkAvailable(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[id]
	if !ok {
		return bed.ErrNotFound
	}
	b.Status = bed.StatusAvailable
	m.beds[id] = b
	return nil
}

type memBeds struct{ *memStore }

func (b memBeds) GetByID(_ context.Context, id uuid.UUID) (*bed.Bed, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found, ok := b.beds[id]
	if !ok {
		return nil, bed.ErrNotFound
	}
	return &found, nil
}

// -- Transactor --

type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// -- Collaborators --

type mockPatients struct {
	known map[uuid.UUID]bool
}

func (p *mockPatients) add() uuid.UUID {
	id := uuid.New()
	p.known[id] = true
	return id
}

func (p *mockPatients) ResolvePatient(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	if !p.known[id] {
		return nil, identity.ErrPatientNotFound
	}
	return &identity.Patient{ID: id, Active: true}, nil
}

type mockPharmacy struct {
	mu            sync.Mutex
	transactional bool
	failOn        map[string]bool
	created       []*medication.Prescription
}

func (p *mockPharmacy) Transactional() bool { return p.transactional }

func (p *mockPharmacy) CreatePrescription(_ context.Context, rx *medication.Prescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[rx.MedicationID] {
		return errors.New("pharmacy rejected " + rx.MedicationID)
	}
	p.created = append(p.created, rx)
	return nil
}

type memAudit struct {
	mu     sync.Mutex
	events []*hipaa.Event
	err    error
}

func (a *memAudit) LogEvent(_ context.Context, e *hipaa.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

// -- Fixture --

type fixture struct {
	svc      *Service
	store    *memStore
	patients *mockPatients
	pharmacy *mockPharmacy
	audit    *memAudit
	clock    time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		patients: &mockPatients{known: make(map[uuid.UUID]bool)},
		pharmacy: &mockPharmacy{transactional: true, failOn: map[string]bool{}},
		audit:    &memAudit{},
		clock:    time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, memBeds{f.store}, f.patients, &memTx{store: f.store}, f.pharmacy, zerolog.Nop())
	f.svc.SetAuditRecorder(hipaa.NewRecorder(f.audit, zerolog.Nop()))
	f.svc.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) admitRequest(patientID uuid.UUID, cat bed.WardCategory) AdmitRequest {
	return AdmitRequest{
		PatientID:     patientID,
		DoctorID:      uuid.MustParse("00000000-0000-0000-0000-00000000d0c1"),
		Diagnosis:     "community-acquired pneumonia",
		AdmissionType: TypeEmergency,
		Priority:      PriorityUrgent,
		WardCategory:  cat,
		Actor:         "dr-house",
	}
}

func dischargeRequest(meds ...DischargeMedication) DischargeRequest {
	return DischargeRequest{
		DischargeType: DischargeRegular,
		Summary: DischargeSummary{
			FinalDiagnoses: []string{"pneumonia, resolved"},
			TreatmentGiven: "IV antibiotics",
			Outcome:        OutcomeImproved,
			Medications:    meds,
		},
		Actor: "dr-house",
	}
}
