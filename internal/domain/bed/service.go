package bed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service exposes read-only views of the bed inventory.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListWards(ctx context.Context) ([]*Ward, error) {
	return s.repo.ListWards(ctx)
}

func (s *Service) ListBeds(ctx context.Context, f Filter) ([]*Bed, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, fmt.Errorf("unknown ward category %q", f.Category)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("unknown bed status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.repo.GetByID(ctx, id)
}
