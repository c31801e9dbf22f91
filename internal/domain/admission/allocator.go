package admission

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/ipd/internal/domain/bed"
)

// Inventory is the bed pool as seen by the allocator.
type Inventory interface {
	FindFreeBed(ctx context.Context, category bed.WardCategory) (*bed.Bed, error)
}

// BedStore is the bed pool as seen by the lifecycle. Status flips happen
// only through it.
type BedStore interface {
	Inventory
	MarkOccupied(ctx context.Context, id uuid.UUID) error
	MarkAvailable(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*bed.Bed, error)
}

// Allocator picks a bed for a ward category. The lifecycle never queries
// the pool directly, so the policy can change without touching it.
type Allocator interface {
	Allocate(ctx context.Context, category bed.WardCategory) (*bed.Bed, error)
}

// BedAllocator takes the first free bed the inventory offers. With the
// Postgres inventory that is the lowest bed code, row-locked until the
// surrounding transaction ends.
type BedAllocator struct {
	beds Inventory
}

func NewBedAllocator(beds Inventory) *BedAllocator {
	return &BedAllocator{beds: beds}
}

func (a *BedAllocator) Allocate(ctx context.Context, category bed.WardCategory) (*bed.Bed, error) {
	b, err := a.beds.FindFreeBed(ctx, category)
	if err != nil {
		return nil, storage("find free bed", err)
	}
	if b == nil {
		return nil, &Error{Kind: ErrNoBedAvailable, WardCategory: category}
	}
	return b, nil
}
