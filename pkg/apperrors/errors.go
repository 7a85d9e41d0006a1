// Package apperrors defines the error kinds surfaced by the approval service.
// Every kind carries an HTTP status and a stable code so the presentation
// layer can render a specific message without string matching.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// ValidationError represents malformed or missing input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError represents a wrong actor, a terminal workflow or an insufficient role
type AuthorizationError struct {
	Action  string
	ActorID string
	Reason  string
}

func (e *AuthorizationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("not authorized to %s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("not authorized to %s", e.Action)
}

func (e *AuthorizationError) HTTPStatus() int {
	return http.StatusForbidden
}

func (e *AuthorizationError) Code() string {
	return "AUTHORIZATION_ERROR"
}

// NewAuthorizationError creates a new AuthorizationError
func NewAuthorizationError(action, actorID, reason string) *AuthorizationError {
	return &AuthorizationError{Action: action, ActorID: actorID, Reason: reason}
}

// NotFoundError represents an unknown workflow, document, step or actor
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int {
	return http.StatusNotFound
}

func (e *NotFoundError) Code() string {
	return "NOT_FOUND"
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError represents a lost concurrent-decision race
type ConflictError struct {
	Resource string
	ID       string
	Message  string
}

func (e *ConflictError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("conflict on %s '%s': %s", e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Message)
}

func (e *ConflictError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ConflictError) Code() string {
	return "CONFLICT"
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, id, message string) *ConflictError {
	return &ConflictError{Resource: resource, ID: id, Message: message}
}

// StorageError represents a persistence failure. It wraps the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage error during %s", e.Op)
}

func (e *StorageError) HTTPStatus() int {
	return http.StatusServiceUnavailable
}

func (e *StorageError) Code() string {
	return "STORAGE_ERROR"
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAuthorization checks if an error is an AuthorizationError
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict checks if an error is a ConflictError
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsStorage checks if an error is a StorageError
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// HTTPStatus returns the HTTP status for an error, 500 for unknown errors
func HTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Code returns the stable error code, INTERNAL_ERROR for unknown errors
func Code(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "INTERNAL_ERROR"
}
