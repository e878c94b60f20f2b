package deps

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes surfaced to API clients. These are stable across releases.
const (
	CodeMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeWorkItemsNotFound     = "WORK_ITEMS_NOT_FOUND"
	CodeDependencyNotFound    = "DEPENDENCY_NOT_FOUND"
	CodeDuplicateDependency   = "DUPLICATE_DEPENDENCY"
	CodeCycleDetected         = "CYCLE_DETECTED"
	CodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError         = "INTERNAL_ERROR"
)

// DomainError carries a stable error code alongside a human-readable
// message. Domain errors travel unmodified from the point of detection to
// the HTTP boundary, where they are classified by code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsDomainError extracts a DomainError from an error chain, if present.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ErrWorkItemsNotFound reports work items referenced by a mutation that do
// not exist in the tenant.
func ErrWorkItemsNotFound(missing []string) *DomainError {
	return &DomainError{
		Code:    CodeWorkItemsNotFound,
		Message: fmt.Sprintf("work items not found: %s", strings.Join(missing, ", ")),
	}
}

// ErrCycleDetected reports that a prospective edge would close a cycle.
// The chain is one representative path, rendered from -> ... -> from.
func ErrCycleDetected(chain []string) *DomainError {
	return &DomainError{
		Code:    CodeCycleDetected,
		Message: fmt.Sprintf("dependency would create a cycle: %s", strings.Join(chain, " -> ")),
	}
}

// ErrDuplicateDependency reports a (tenant, from, to) uniqueness violation.
func ErrDuplicateDependency(fromID, toID string) *DomainError {
	return &DomainError{
		Code:    CodeDuplicateDependency,
		Message: fmt.Sprintf("dependency from %s to %s already exists", fromID, toID),
	}
}

// ErrDependencyNotFound reports that the addressed edge does not exist in
// the caller's tenant.
func ErrDependencyNotFound(id string) *DomainError {
	return &DomainError{
		Code:    CodeDependencyNotFound,
		Message: fmt.Sprintf("dependency %s not found", id),
	}
}

// ErrInvalidRequest reports a field that is present but rejected.
func ErrInvalidRequest(msg string) *DomainError {
	return &DomainError{Code: CodeInvalidRequest, Message: msg}
}

// ErrMissingFields reports required fields absent from a request.
func ErrMissingFields(fields ...string) *DomainError {
	return &DomainError{
		Code:    CodeMissingRequiredFields,
		Message: fmt.Sprintf("missing required fields: %s", strings.Join(fields, ", ")),
	}
}
