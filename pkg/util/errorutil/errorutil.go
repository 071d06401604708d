package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to callers.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeOfferingNotOpen    = "OFFERING_NOT_OPEN"
	CodeDeadlinePassed     = "DEADLINE_PASSED"
	CodeMissingDocument    = "MISSING_DOCUMENT"
	CodeOfferingFull       = "OFFERING_FULL"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks; matching is by code.
var (
	ErrNotFound           = &DomainError{Code: CodeNotFound}
	ErrForbidden          = &DomainError{Code: CodeForbidden}
	ErrConflict           = &DomainError{Code: CodeConflict}
	ErrOfferingNotOpen    = &DomainError{Code: CodeOfferingNotOpen}
	ErrDeadlinePassed     = &DomainError{Code: CodeDeadlinePassed}
	ErrMissingDocument    = &DomainError{Code: CodeMissingDocument}
	ErrOfferingFull       = &DomainError{Code: CodeOfferingFull}
	ErrPersistenceFailure = &DomainError{Code: CodePersistenceFailure}
	ErrValidation         = &DomainError{Code: CodeValidationFailed}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewOfferingNotOpen(offeringID string) error {
	return NewDomainError(CodeOfferingNotOpen, "Offering is not open for enrollment",
		http.StatusUnprocessableEntity, map[string]any{"offering_id": offeringID})
}

func NewDeadlinePassed(semesterID string) error {
	return NewDomainError(CodeDeadlinePassed, "Enrollment deadline passed",
		http.StatusUnprocessableEntity, map[string]any{"semester_id": semesterID})
}

func NewMissingDocument(documentType string) error {
	return NewDomainError(CodeMissingDocument, "Required document missing",
		http.StatusUnprocessableEntity, map[string]any{"document_type": documentType})
}

func NewOfferingFull(offeringID string, maxCapacity int) error {
	return NewDomainError(CodeOfferingFull, "Offering is full", http.StatusConflict,
		map[string]any{"offering_id": offeringID, "max_capacity": maxCapacity})
}

// NewPersistenceFailure wraps a store failure. Callers may retry the whole operation.
func NewPersistenceFailure(err error) error {
	return &DomainError{
		Code:       CodePersistenceFailure,
		Message:    "persistence failure",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError returns err as a DomainError, leaving domain errors untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// Persistence passes domain errors through and wraps everything else as PERSISTENCE_FAILURE.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return NewPersistenceFailure(err)
}
