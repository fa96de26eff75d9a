package service

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

// NewValidator returns a validator with the domain specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return models.ClockPattern.MatchString(fl.Field().String())
	})
	return v
}

// validationError converts validator output into a field-level validation error.
func validationError(err error, message string) *appErrors.Error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]interface{}, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fieldName(fe)] = fieldMessage(fe)
		}
		appErr.Details = details
	}
	return appErr
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "hhmm":
		return "must be a 24-hour time in HH:MM format"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

func fieldValidation(field, message string) *appErrors.Error {
	return appErrors.ErrValidation.WithDetails(map[string]interface{}{field: message})
}

// notFoundOrInternal maps a repository error onto a not found or internal error.
func notFoundOrInternal(err error, notFound, internal string) *appErrors.Error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
