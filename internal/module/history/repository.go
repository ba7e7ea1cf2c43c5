package history

import (
	"context"
	"errors"

	"github.com/simp-lee/pagination"
	"gorm.io/gorm"

	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/pkg"
)

// Allowed fields for sorting and filtering in List queries. session_id is
// the cookie value and stays out of both.
var (
	allowedSortFields   = []string{"id", "created_at", "route_name"}
	allowedFilterFields = []string{"route_name", "path"}
)

// visitRepository implements domain.VisitRepository using GORM.
type visitRepository struct {
	db *gorm.DB
}

// NewVisitRepository creates a VisitRepository backed by db.
func NewVisitRepository(db *gorm.DB) domain.VisitRepository {
	return &visitRepository{db: db}
}

func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	if err := r.db.WithContext(ctx).Create(visit).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// List returns a paginated, sorted and filtered page of visits. Pages past
// the end are clamped to the last page.
func (r *visitRepository) List(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.Visit], error) {
	filtered := func(ctx context.Context) *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.Visit{}).
			Scopes(pkg.Filter(req, allowedFilterFields))
	}

	p := pagination.NewPaginator(
		pagination.WithItemsPerPage[domain.Visit](req.PageSize),
		pagination.WithItemTotalCallback[domain.Visit](func(ctx context.Context) (int64, error) {
			var total int64
			if err := filtered(ctx).Count(&total).Error; err != nil {
				return 0, mapError(err)
			}
			return total, nil
		}),
		pagination.WithSliceCallback(func(ctx context.Context, offset, limit int) ([]domain.Visit, error) {
			var visits []domain.Visit
			if err := filtered(ctx).Scopes(
				pkg.Paginate(offset, limit),
				pkg.Sort(req, allowedSortFields),
			).Find(&visits).Error; err != nil {
				return nil, mapError(err)
			}
			return visits, nil
		}),
	)

	result, err := p.Paginate(ctx, req.Page)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// Recent returns up to limit visits of one session, newest first.
func (r *visitRepository) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Visit, error) {
	var visits []domain.Visit
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id desc").
		Limit(limit).
		Find(&visits).Error
	if err != nil {
		return nil, mapError(err)
	}
	return visits, nil
}

// Trim deletes all but the keep newest visits of a session and returns the
// number of rows removed.
func (r *visitRepository) Trim(ctx context.Context, sessionID string, keep int) (int64, error) {
	if keep < 1 {
		return 0, domain.NewAppError(domain.CodeValidation, "keep must be positive", nil)
	}

	db := r.db.WithContext(ctx)
	newest := db.Model(&domain.Visit{}).
		Select("id").
		Where("session_id = ?", sessionID).
		Order("id desc").
		Limit(keep)

	result := db.Where("session_id = ? AND id NOT IN (?)", sessionID, newest).
		Delete(&domain.Visit{})
	if result.Error != nil {
		return 0, mapError(result.Error)
	}
	return result.RowsAffected, nil
}

// WithTx runs fn with a repository bound to a single transaction.
func (r *visitRepository) WithTx(ctx context.Context, fn func(repo domain.VisitRepository) error) error {
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		return fn(&visitRepository{db: tx})
	})
}

// mapError converts GORM errors to domain errors. Errors that are already
// domain errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}
