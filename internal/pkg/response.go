package pkg

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/billweb/internal/domain"
)

// Response is the standard JSON envelope for API responses.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationErrorResponse is the JSON envelope for validation failures.
type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// Success sends a 200 JSON response with the given data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

// Error sends a JSON error response. A *domain.AppError maps to its HTTP
// status and message; any other error becomes a 500 with a generic message.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)

	var appErr *domain.AppError
	msg := "internal error"
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}

	c.JSON(status, Response{
		Code:    status,
		Message: msg,
		Data:    nil,
	})
}

// List sends a 200 JSON response for paginated results, typically a
// *pagination.Pagination.
func List(c *gin.Context, result any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    result,
	})
}

// ValidationError sends a 400 response. validator.ValidationErrors are
// reported per field; anything else is a plain "bad request".
func ValidationError(c *gin.Context, err error) {
	validationErrorWithType(c, err, nil)
}

// BindQuery binds the query string to obj and validates its binding tags.
// On failure it sends a ValidationError response and returns false:
//
//	if !pkg.BindQuery(c, &q) { return }
func BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		validationErrorWithType(c, err, obj)
		return false
	}
	return true
}

func validationErrorWithType(c *gin.Context, err error, obj any) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "bad request",
			Data:    nil,
		})
		return
	}

	names := buildTagNameMap(obj)

	fieldErrors := make(map[string]string, len(ve))
	for _, fe := range ve {
		name, ok := names[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		fieldErrors[name] = fieldMessage(fe)
	}

	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "validation error",
		Errors:  fieldErrors,
	})
}

func fieldMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "uuid", "uuid4":
		return "Must be a valid UUID"
	case "alphanum":
		return "Must contain only letters and digits"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "min", "gte":
		if isString {
			return fmt.Sprintf("Must be at least %s characters", fe.Param())
		}
		return "Must be at least " + fe.Param()
	case "max", "lte":
		if isString {
			return fmt.Sprintf("Must be at most %s characters", fe.Param())
		}
		return "Must be at most " + fe.Param()
	}
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// buildTagNameMap maps struct field names to the names clients send: the
// form tag when present, else the json tag.
func buildTagNameMap(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	m := make(map[string]string, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if name := parseTagName(f.Tag.Get("form")); name != "" {
			m[f.Name] = name
			continue
		}
		if name := parseTagName(f.Tag.Get("json")); name != "" {
			m[f.Name] = name
		}
	}
	return m
}

func parseTagName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return ""
	}
	return name
}
