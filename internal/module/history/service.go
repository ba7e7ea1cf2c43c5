package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/simp-lee/pagination"

	"github.com/simp-lee/billweb/internal/domain"
)

// Options bounds how much history is kept and shown per session.
type Options struct {
	// MaxPerSession is how many visits a session keeps; older ones are
	// trimmed on every Record.
	MaxPerSession int
	// RecentLimit is the default size of Recent when the caller passes 0.
	RecentLimit int
}

const (
	defaultMaxPerSession = 200
	defaultRecentLimit   = 10
)

var (
	inputValidatorOnce sync.Once
	inputValidator     *validator.Validate
)

func visitInputValidator() *validator.Validate {
	inputValidatorOnce.Do(func() {
		inputValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return inputValidator
}

// visitService implements domain.VisitService.
type visitService struct {
	repo domain.VisitRepository
	opts Options
}

// NewVisitService creates a VisitService. Non-positive options fall back to
// defaults and RecentLimit never exceeds MaxPerSession.
func NewVisitService(repo domain.VisitRepository, opts Options) domain.VisitService {
	if opts.MaxPerSession < 1 {
		opts.MaxPerSession = defaultMaxPerSession
	}
	if opts.RecentLimit < 1 {
		opts.RecentLimit = defaultRecentLimit
	}
	opts.RecentLimit = min(opts.RecentLimit, opts.MaxPerSession)
	return &visitService{repo: repo, opts: opts}
}

// Record validates in, stores the visit and trims the session to
// MaxPerSession visits in one transaction.
func (s *visitService) Record(ctx context.Context, in domain.VisitInput) (*domain.Visit, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.RouteName = strings.TrimSpace(in.RouteName)
	in.Path = strings.TrimSpace(in.Path)

	if err := validateInput(in); err != nil {
		return nil, err
	}

	visit := &domain.Visit{
		SessionID: in.SessionID,
		RouteName: in.RouteName,
		Path:      in.Path,
		RequestID: in.RequestID,
	}

	err := s.repo.WithTx(ctx, func(repo domain.VisitRepository) error {
		if err := repo.Create(ctx, visit); err != nil {
			return err
		}
		_, err := repo.Trim(ctx, visit.SessionID, s.opts.MaxPerSession)
		return err
	})
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// Recent returns the session's newest visits. limit <= 0 means the
// configured RecentLimit; larger values are capped at MaxPerSession.
func (s *visitService) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Visit, error) {
	if strings.TrimSpace(sessionID) == "" {
		return []domain.Visit{}, nil
	}
	if limit < 1 {
		limit = s.opts.RecentLimit
	}
	limit = min(limit, s.opts.MaxPerSession)

	visits, err := s.repo.Recent(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if visits == nil {
		visits = []domain.Visit{}
	}
	return visits, nil
}

// List returns one page of visits across sessions.
func (s *visitService) List(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.Visit], error) {
	return s.repo.List(ctx, req)
}

func validateInput(in domain.VisitInput) error {
	err := visitInputValidator().Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return domain.NewAppError(domain.CodeValidation,
			fmt.Sprintf("invalid visit: %s failed %s", strings.ToLower(fe.Field()), fe.Tag()), err)
	}
	return domain.NewAppError(domain.CodeValidation, "invalid visit", err)
}
