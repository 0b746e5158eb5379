package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable reason carried by every rejection.
type ErrorCode string

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches two AppErrors by code so callers can compare against the
// exported sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

const (
	ErrValidation             ErrorCode = "VALIDATION_ERROR"
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrNotWorkingDay          ErrorCode = "NOT_WORKING_DAY"
	ErrOutsideWorkingHours    ErrorCode = "OUTSIDE_WORKING_HOURS"
	ErrDuringBreak            ErrorCode = "DURING_BREAK"
	ErrSlotTaken              ErrorCode = "SLOT_TAKEN"
	ErrInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrInternal               ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is; they match any AppError with the same code.
var (
	Validation             = &AppError{Code: ErrValidation}
	NotFoundErr            = &AppError{Code: ErrNotFound}
	SlotTaken              = &AppError{Code: ErrSlotTaken}
	InvalidStateTransition = &AppError{Code: ErrInvalidStateTransition}
	UnauthorizedErr        = &AppError{Code: ErrUnauthorized}
	InternalErr            = &AppError{Code: ErrInternal}
)

// IsSchedulingRejection reports whether code is one of the business-rule
// rejections after which a caller may ask for alternative times.
func (c ErrorCode) IsSchedulingRejection() bool {
	switch c {
	case ErrNotWorkingDay, ErrOutsideWorkingHours, ErrDuringBreak, ErrSlotTaken:
		return true
	}
	return false
}

// HTTPStatus maps the code onto a response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrNotWorkingDay, ErrOutsideWorkingHours, ErrDuringBreak, ErrSlotTaken, ErrInvalidStateTransition:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// New builds an AppError with an explicit code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NewValidation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewInvalidTransition(action, from string) *AppError {
	return &AppError{
		Code:    ErrInvalidStateTransition,
		Message: fmt.Sprintf("cannot %s an appointment that is %s", action, from),
	}
}

func NewUnauthorized(action string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: fmt.Sprintf("you are not allowed to %s this appointment", action),
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "something went wrong, please try again",
		Err:     err,
	}
}

// CodeOf extracts the code of err, defaulting to INTERNAL_ERROR for
// anything that is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// As is errors.As, re-exported so callers importing this package under its
// own name keep access to the standard helper.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is, re-exported for the same reason as As.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
