package entities

import "fmt"

// ValidationError indicates a caller supplied an invalid or missing field.
// Surfaced synchronously, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError indicates an unknown type, entity, snapshot or job.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NewNotFoundError creates a NotFoundError for a resource key.
func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// CapabilityError indicates an external capability (language model, graph or
// vector datastore) failed or timed out. Surfaces as a failed job with the
// underlying cause recorded; never auto-retried.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError wraps an underlying capability failure.
func NewCapabilityError(capability string, err error) error {
	return &CapabilityError{Capability: capability, Err: err}
}

// ConsistencyError indicates an operation was rejected before any mutation
// began: restoring an expired or consumed snapshot, or submitting a job that
// would interleave with a running one on the same type.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "consistency: " + e.Reason
}

// NewConsistencyError creates a ConsistencyError with a reason.
func NewConsistencyError(reason string) error {
	return &ConsistencyError{Reason: reason}
}
