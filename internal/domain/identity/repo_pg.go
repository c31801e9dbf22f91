package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ipd/internal/platform/db"
)

type directoryPG struct {
	pool *pgxpool.Pool
}

// NewDirectory returns a Directory backed by the tenant's patient table.
func NewDirectory(pool *pgxpool.Pool) Directory {
	return &directoryPG{pool: pool}
}

func (d *directoryPG) ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := db.From(ctx, d.pool).QueryRow(ctx,
		`SELECT id, mrn, first_name, last_name, active FROM patient WHERE id = $1 AND active`, id).
		Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.Active)
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}
	return &p, nil
}
