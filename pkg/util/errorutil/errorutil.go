package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the trade core and the HTTP layer.
const (
	CodeNotAParticipant     = "NOT_A_PARTICIPANT"
	CodeAlreadyCompleted    = "ALREADY_COMPLETED"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvalidRating       = "INVALID_RATING"
	CodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	CodeCooldownActive      = "COOLDOWN_ACTIVE"
	CodeNotFound            = "NOT_FOUND"
	CodeNotOwner            = "NOT_LISTING_OWNER"
	CodeConflict            = "CONFLICT"
	CodeValidation          = "VALIDATION_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
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

// Is matches any DomainError carrying the same code, so detailed instances
// satisfy errors.Is against the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotAParticipant     = NewDomainError(CodeNotAParticipant, "user is not a participant", http.StatusForbidden, nil)
	ErrAlreadyCompleted    = NewDomainError(CodeAlreadyCompleted, "already marked as complete", http.StatusConflict, nil)
	ErrInvalidState        = NewDomainError(CodeInvalidState, "action not allowed in current state", http.StatusConflict, nil)
	ErrInvalidRating       = NewDomainError(CodeInvalidRating, "stars must be between 1 and 5", http.StatusBadRequest, nil)
	ErrDuplicateSubmission = NewDomainError(CodeDuplicateSubmission, "rating already submitted", http.StatusConflict, nil)
	ErrCooldownActive      = NewDomainError(CodeCooldownActive, "bump cooldown active", http.StatusTooManyRequests, nil)
	ErrNotFound            = NewDomainError(CodeNotFound, "resource not found", http.StatusNotFound, nil)
	ErrNotOwner            = NewDomainError(CodeNotOwner, "only the listing owner may do this", http.StatusForbidden, nil)
	ErrConflict            = NewDomainError(CodeConflict, "conflict", http.StatusConflict, nil)
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
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

func NewNotAParticipant(userID string) error {
	return NewDomainError(CodeNotAParticipant, "user is not a participant", http.StatusForbidden,
		map[string]any{"user_id": userID})
}

func NewNotOwner(userID string) error {
	return NewDomainError(CodeNotOwner, "only the listing owner may do this", http.StatusForbidden,
		map[string]any{"user_id": userID})
}

func NewAlreadyCompleted(userID string) error {
	return NewDomainError(CodeAlreadyCompleted, "already marked as complete", http.StatusConflict,
		map[string]any{"user_id": userID})
}

func NewInvalidState(message string, state string) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict,
		map[string]any{"state": state})
}

func NewInvalidRating(stars int) error {
	return NewDomainError(CodeInvalidRating, "stars must be between 1 and 5", http.StatusBadRequest,
		map[string]any{"stars": stars})
}

func NewDuplicateSubmission(userID string) error {
	return NewDomainError(CodeDuplicateSubmission, "rating already submitted", http.StatusConflict,
		map[string]any{"user_id": userID})
}

func NewCooldownActive(availableAt time.Time) error {
	return NewDomainError(CodeCooldownActive, "bump cooldown active", http.StatusTooManyRequests,
		map[string]any{"available_at": availableAt.UTC().Format(time.RFC3339)})
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

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsDomain reports whether err is a caller-visible domain condition rather
// than an infrastructure failure.
func IsDomain(err error) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.HTTPStatus < http.StatusInternalServerError
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
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
