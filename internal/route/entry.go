// Package route is the navigation table of the web UI: which path activates
// which page component, under which name.
package route

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/billweb/internal/view"
)

// Entry binds a navigation path to a page component.
type Entry struct {
	Path      string          `json:"path" validate:"required,max=255,routepath"`
	Name      string          `json:"name,omitempty" validate:"omitempty,max=64,alphanum"`
	Component *view.Component `json:"-" validate:"required"`
}

// routePathPattern accepts absolute slash-separated paths without query,
// fragment, whitespace or gin wildcards.
var routePathPattern = regexp.MustCompile(`^/[A-Za-z0-9_\-./]*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func entryValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Registration only fails for an empty tag or nil func.
		_ = v.RegisterValidation("routepath", func(fl validator.FieldLevel) bool {
			return routePathPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}
