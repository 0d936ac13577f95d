package model

import (
	"math"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPage keeps (MaxPage-1)*MaxPageSize well inside a 32-bit offset.
	// Keep in sync with the Page validate tag.
	MaxPage = 10_000_000
)

// MessageFilter holds criteria for listing a receiver's messages.
// Time bounds are inclusive and apply to created_at.
type MessageFilter struct {
	Type      *Kind      `json:"type,omitempty" validate:"omitempty,oneof=1 2 3"`
	IsRead    *bool      `json:"is_read,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Page      int        `json:"page" validate:"min=1,max=10000000"`
	PageSize  int        `json:"page_size" validate:"min=1,max=100"`
	Sort      string     `json:"sort,omitempty" validate:"omitempty,oneof=created_at -created_at"` // "-" prefix = descending
}

// WithDefaults fills zero pagination fields with their defaults.
func (f MessageFilter) WithDefaults() MessageFilter {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = DefaultPageSize
	}
	if f.Sort == "" {
		f.Sort = "-created_at"
	}
	return f
}

// Offset is the number of rows skipped for the filter's page. It saturates
// at math.MaxInt instead of overflowing for unvalidated filters.
func (f MessageFilter) Offset() int {
	if f.Page < 1 || f.PageSize < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.PageSize {
		return math.MaxInt
	}
	return (f.Page - 1) * f.PageSize
}
