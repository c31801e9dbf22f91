package hipaa

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/ipd/internal/platform/db"
)

// Compliance flags attached to audit events.
const (
	FlagPHI           = "HIPAA_PHI"
	FlagClinicalAlert = "CLINICAL_ALERT"
	FlagAccess        = "PHI_ACCESS"
)

// Actions written by the IPD core.
const (
	ActionAdmit         = "ADMIT"
	ActionTransfer      = "TRANSFER"
	ActionDischarge     = "DISCHARGE"
	ActionUpdate        = "UPDATE"
	ActionProgressNote  = "PROGRESS_NOTE"
	ActionNursingNote   = "NURSING_NOTE"
	ActionRecordVitals  = "RECORD_VITALS"
	ActionClinicalAlert = "CLINICAL_ALERT"
)

// Event is one entry in the audit_event table.
type Event struct {
	ID              uuid.UUID      `json:"id"`
	Actor           string         `json:"actor"`
	Action          string         `json:"action"`
	Resource        string         `json:"resource"`
	ResourceID      string         `json:"resource_id"`
	Details         map[string]any `json:"details,omitempty"`
	ComplianceFlags []string       `json:"compliance_flags"`
	RecordedAt      time.Time      `json:"recorded_at"`
}

// NewEvent builds an event tagged for patient-data compliance.
func NewEvent(actor, action, resource, resourceID string, details map[string]any) *Event {
	return &Event{
		ID:              uuid.New(),
		Actor:           actor,
		Action:          action,
		Resource:        resource,
		ResourceID:      resourceID,
		Details:         details,
		ComplianceFlags: []string{FlagPHI},
		RecordedAt:      time.Now().UTC(),
	}
}

// Sink persists audit events.
type Sink interface {
	LogEvent(ctx context.Context, event *Event) error
}

// AuditLogger writes audit events to the database.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger creates a new AuditLogger backed by the given connection pool.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// LogEvent writes an Event to the audit_event table. It uses the tenant-scoped
// connection from context when available, falling back to the pool.
func (a *AuditLogger) LogEvent(ctx context.Context, event *Event) error {
	prepare(event)
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("hipaa audit: marshal details: %w", err)
	}
	_, err = db.From(ctx, a.pool).Exec(ctx, `
		INSERT INTO audit_event (id, actor, action, resource, resource_id, details, compliance_flags, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Actor, event.Action, event.Resource, event.ResourceID,
		details, event.ComplianceFlags, event.RecordedAt)
	if err != nil {
		return fmt.Errorf("hipaa audit: insert event: %w", err)
	}
	return nil
}

func prepare(event *Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	if event.ComplianceFlags == nil {
		event.ComplianceFlags = []string{}
	}
}

// Recorder is the fire-and-forget face of a Sink used by the clinical
// services: failures are logged and never returned.
type Recorder struct {
	sink      Sink
	logger    zerolog.Logger
	onFailure func()
}

func NewRecorder(sink Sink, logger zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// OnFailure registers fn to run after every failed write, e.g. a metric.
func (r *Recorder) OnFailure(fn func()) *Recorder {
	r.onFailure = fn
	return r
}

// Record writes event and logs any failure at error level.
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.LogEvent(ctx, event); err != nil {
		r.logger.Error().Err(err).
			Str("type", "audit_failure").
			Str("action", event.Action).
			Str("resource", event.Resource).
			Str("resource_id", event.ResourceID).
			Str("actor", event.Actor).
			Msg("failed to write audit event")
		if r.onFailure != nil {
			r.onFailure()
		}
	}
}
