package service

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/validation"
	appErrors "github.com/noah-isme/academia-api/pkg/errors"
)

// PageConfig bounds list pagination.
type PageConfig struct {
	DefaultSize int
	MaxSize     int
}

func (p PageConfig) resolve(page, size int) (int, int) {
	page, size, _ = models.PageBounds(page, size, p.DefaultSize, p.MaxSize)
	return page, size
}

// NewValidator returns a validator reporting JSON field names and knowing the
// custom tags used by request payloads.
func NewValidator() *validator.Validate {
	v := validator.New()
	configureValidator(v)
	return v
}

func configureValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		v = validator.New()
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("grade", func(fl validator.FieldLevel) bool {
		return ValidGrade(fl.Field().Float())
	})
	return v
}

// ValidGrade reports whether g lies in [0, 10] with at most two fractional digits.
func ValidGrade(g float64) bool {
	if math.IsNaN(g) || g < 0 || g > 10 {
		return false
	}
	scaled := g * 100
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func notFound(message string) error {
	return appErrors.Clone(appErrors.ErrNotFound, message)
}

// validationError converts validator output into an itemized 400.
func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make([]appErrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, appErrors.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: describeFieldError(fe),
		})
	}
	return appErrors.WithDetails(appErrors.ErrValidation, message, details)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a valid identifier", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "grade":
		return "grade must be between 0 and 10 with at most two decimals"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// ruleError converts rule violations into an itemized 400.
func ruleError(violations validation.Violations) error {
	details := make([]appErrors.FieldError, 0, len(violations))
	for _, v := range violations {
		details = append(details, appErrors.FieldError{Field: v.Field, Rule: string(v.Rule), Message: v.Message})
	}
	return appErrors.WithDetails(appErrors.ErrValidation, violations[0].Message, details)
}
