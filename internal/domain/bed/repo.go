package bed

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the bed inventory. Only the admission lifecycle calls the
// Mark* methods.
type Repository interface {
	// FindFreeBed locks and returns the AVAILABLE bed with the lowest code
	// in category, or nil when none is free. Must run inside a transaction.
	FindFreeBed(ctx context.Context, category WardCategory) (*Bed, error)
	// MarkOccupied flips an AVAILABLE bed to OCCUPIED; ErrNotAvailable otherwise.
	MarkOccupied(ctx context.Context, id uuid.UUID) error
	MarkAvailable(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	List(ctx context.Context, f Filter) ([]*Bed, error)
	ListWards(ctx context.Context) ([]*Ward, error)
}
