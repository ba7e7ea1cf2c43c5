package domain

import (
	"context"

	"github.com/simp-lee/pagination"
)

// Visit is one recorded navigation to a declared route within a browser
// session. SessionID equals the session cookie value and is never
// serialized.
type Visit struct {
	BaseModel
	SessionID string `gorm:"size:36;index;not null" json:"-"`
	RouteName string `gorm:"size:64;index" json:"route_name"`
	Path      string `gorm:"size:255;not null" json:"path"`
	RequestID string `gorm:"size:64" json:"request_id,omitempty"`
}

// VisitInput is the data needed to record a visit.
type VisitInput struct {
	SessionID string `validate:"required,uuid"`
	RouteName string `validate:"omitempty,max=64,alphanum"`
	Path      string `validate:"required,startswith=/,max=255"`
	RequestID string `validate:"omitempty,max=64"`
}

// VisitRepository defines data access for visits.
type VisitRepository interface {
	Create(ctx context.Context, visit *Visit) error
	List(ctx context.Context, req PageRequest) (*pagination.Pagination[Visit], error)
	Recent(ctx context.Context, sessionID string, limit int) ([]Visit, error)
	Trim(ctx context.Context, sessionID string, keep int) (int64, error)
	WithTx(ctx context.Context, fn func(repo VisitRepository) error) error
}

// VisitService defines navigation history operations.
type VisitService interface {
	Record(ctx context.Context, in VisitInput) (*Visit, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]Visit, error)
	List(ctx context.Context, req PageRequest) (*pagination.Pagination[Visit], error)
}
