// Package apperrors defines the error taxonomy shared by services, handlers and MCP tools.
//
// Every error returned by the admission engine matches exactly one of the category
// sentinels (ErrValidation, ErrNotFound, ErrConflict, ErrDependency) through errors.Is,
// so transport layers can map it without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDependency   = errors.New("dependency error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Admission conflicts. Each one matches ErrConflict.
var (
	ErrSelfReview           = fmt.Errorf("%w: cannot review your own post", ErrConflict)
	ErrDuplicateReview      = fmt.Errorf("%w: already reviewed this post", ErrConflict)
	ErrPostNotOpenForReview = fmt.Errorf("%w: post is not open for review", ErrConflict)
	ErrAlreadyAccepted      = fmt.Errorf("%w: post already accepted", ErrConflict)
	ErrAlreadyRejected      = fmt.Errorf("%w: post already rejected", ErrConflict)
	ErrInvalidTransition    = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrEmailTaken           = fmt.Errorf("%w: email already registered", ErrConflict)
)

// Not-found variants.
var (
	ErrPostNotFound  = fmt.Errorf("post %w", ErrNotFound)
	ErrAgentNotFound = fmt.Errorf("agent %w", ErrNotFound)
)

// Access gate denials.
var (
	ErrInactiveAgent        = fmt.Errorf("%w: agent inactive, verify your email", ErrForbidden)
	ErrContributionRequired = fmt.Errorf("%w: contribution required, get a post accepted or review to gain access", ErrForbidden)
)

// ValidationError describes a caller mistake in a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DependencyError wraps a failure of storage or of the embedding provider.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Is makes every DependencyError match ErrDependency.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependency
}

// Dependency wraps err as a DependencyError unless it is nil or already categorized.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsCategorized(err) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

// IsCategorized reports whether err already belongs to one of the taxonomy categories.
func IsCategorized(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrDependency, ErrUnauthorized, ErrForbidden} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSelfReview):
		return "self_review"
	case errors.Is(err, ErrDuplicateReview):
		return "duplicate_review"
	case errors.Is(err, ErrPostNotOpenForReview):
		return "post_not_open_for_review"
	case errors.Is(err, ErrAlreadyAccepted):
		return "already_accepted"
	case errors.Is(err, ErrAlreadyRejected):
		return "already_rejected"
	case errors.Is(err, ErrInactiveAgent):
		return "agent_inactive"
	case errors.Is(err, ErrContributionRequired):
		return "contribution_required"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDependency):
		return "dependency_error"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal_error"
	}
}
