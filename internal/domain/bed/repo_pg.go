package bed

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ipd/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const bedCols = `b.id, b.code, b.status, r.id, r.code, w.id, w.code, w.category, b.updated_at`

const bedFrom = ` FROM bed b JOIN room r ON r.id = b.room_id JOIN ward w ON w.id = r.ward_id`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.Code, &b.Status, &b.RoomID, &b.RoomCode, &b.WardID, &b.WardCode, &b.Category, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindFreeBed skips rows another transaction has locked, so two concurrent
// allocators never pick the same bed and never block on each other.
func (r *repoPG) FindFreeBed(ctx context.Context, category WardCategory) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+bedFrom+`
		WHERE w.category = $1 AND b.status = 'AVAILABLE'
		ORDER BY b.code, b.id
		LIMIT 1
		FOR UPDATE OF b SKIP LOCKED`, category))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find free bed: %w", err)
	}
	return b, nil
}

func (r *repoPG) MarkOccupied(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE bed SET status = 'OCCUPIED', updated_at = NOW() WHERE id = $1 AND status = 'AVAILABLE'`, id)
	if err != nil {
		return fmt.Errorf("mark bed occupied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAvailable
	}
	return nil
}

func (r *repoPG) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE bed SET status = 'AVAILABLE', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark bed available: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+bedFrom+` WHERE b.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bed: %w", err)
	}
	return b, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Bed, error) {
	var where []string
	var args []interface{}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("w.category = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("b.status = $%d", len(args)))
	}
	q := `SELECT ` + bedCols + bedFrom
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY w.code, b.code`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list beds: %w", err)
	}
	defer rows.Close()

	var out []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bed: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repoPG) ListWards(ctx context.Context) ([]*Ward, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, code, name, category, floor, created_at FROM ward ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	defer rows.Close()

	var out []*Ward
	for rows.Next() {
		var w Ward
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Category, &w.Floor, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ward: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
