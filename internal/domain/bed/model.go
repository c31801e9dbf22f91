package bed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WardCategory is the clinical classification of a ward.
type WardCategory string

const (
	CategoryGeneral WardCategory = "GENERAL"
	CategoryPrivate WardCategory = "PRIVATE"
	CategoryICU     WardCategory = "ICU"
	CategoryCCU     WardCategory = "CCU"
	CategoryNICU    WardCategory = "NICU"
	CategoryPICU    WardCategory = "PICU"
)

// Categories lists every ward category in display order.
var Categories = []WardCategory{
	CategoryGeneral, CategoryPrivate, CategoryICU, CategoryCCU, CategoryNICU, CategoryPICU,
}

func (c WardCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseWardCategory accepts any letter case.
func ParseWardCategory(s string) (WardCategory, error) {
	c := WardCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown ward category %q", s)
	}
	return c, nil
}

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusOccupied  Status = "OCCUPIED"
)

func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusOccupied
}

var (
	ErrNotFound     = errors.New("bed not found")
	ErrNotAvailable = errors.New("bed is not available")
)

type Ward struct {
	ID        uuid.UUID    `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Category  WardCategory `json:"category"`
	Floor     *int         `json:"floor,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Bed is a physical bed together with the room and ward it sits in.
type Bed struct {
	ID        uuid.UUID    `json:"id"`
	Code      string       `json:"code"`
	Status    Status       `json:"status"`
	RoomID    uuid.UUID    `json:"room_id"`
	RoomCode  string       `json:"room_code"`
	WardID    uuid.UUID    `json:"ward_id"`
	WardCode  string       `json:"ward_code"`
	Category  WardCategory `json:"ward_category"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Filter narrows bed listings. Zero values match everything.
type Filter struct {
	Category WardCategory
	Status   Status
}
