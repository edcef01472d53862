package errors

// ErrorCategory classifies errors by their nature and handling semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryValidation indicates malformed or out-of-range input.
	// Rejected synchronously, no state mutation.
	CategoryValidation ErrorCategory = "validation"

	// CategoryStaleness indicates input whose timestamp is outside tolerance.
	// Kept distinct from validation for observability.
	CategoryStaleness ErrorCategory = "staleness"

	// CategoryCollaborator indicates a timeout or failure from an external
	// collaborator (health evaluator, healer, explainer). Recovered locally
	// by degrading to a conservative decision.
	CategoryCollaborator ErrorCategory = "collaborator"

	// CategoryConfig indicates invalid thresholds or capacities at startup.
	// Fatal, fail fast.
	CategoryConfig ErrorCategory = "config"

	// CategoryInternal indicates unexpected errors or invariant violations.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRecoverable returns true if errors in this category are recovered
// locally rather than propagated as fatal.
func (c ErrorCategory) IsRecoverable() bool {
	switch c {
	case CategoryValidation, CategoryStaleness, CategoryCollaborator:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific failure types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Validation errors
	ErrCodeMissingNodeID  ErrorCode = "MISSING_NODE_ID" // Report has no node identifier
	ErrCodeMissingMetrics ErrorCode = "MISSING_METRICS" // Report has no CPU/memory metrics
	ErrCodeOutOfRange     ErrorCode = "OUT_OF_RANGE"    // Utilization outside [0,100]
	ErrCodeInvalidReport  ErrorCode = "INVALID_REPORT"  // Other malformed payload
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"    // Node exceeded its report budget

	// Staleness errors
	ErrCodeStaleMetrics   ErrorCode = "STALE_METRICS"   // Metric timestamp outside tolerance
	ErrCodeStaleHeartbeat ErrorCode = "STALE_HEARTBEAT" // Heartbeat timestamp outside tolerance

	// Collaborator errors
	ErrCodeCollaboratorTimeout ErrorCode = "COLLABORATOR_TIMEOUT" // Bounded call timed out
	ErrCodeCollaboratorFailed  ErrorCode = "COLLABORATOR_FAILED"  // Call returned an error
	ErrCodeCanceled            ErrorCode = "CANCELED"             // Context canceled

	// Config errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG" // Bad threshold or capacity

	// Internal errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND" // Node or record does not exist
	ErrCodeClosed   ErrorCode = "CLOSED"    // Component already stopped
	ErrCodeInternal ErrorCode = "INTERNAL"  // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeMissingNodeID, ErrCodeMissingMetrics, ErrCodeOutOfRange, ErrCodeInvalidReport, ErrCodeRateLimited:
		return CategoryValidation
	case ErrCodeStaleMetrics, ErrCodeStaleHeartbeat:
		return CategoryStaleness
	case ErrCodeCollaboratorTimeout, ErrCodeCollaboratorFailed, ErrCodeCanceled:
		return CategoryCollaborator
	case ErrCodeInvalidConfig:
		return CategoryConfig
	default:
		return CategoryInternal
	}
}
