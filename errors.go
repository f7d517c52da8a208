package lifecycle

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// Text codes for the lifecycle error taxonomy.
const (
	ErrCodeInvalidTransition  = "LIFECYCLE_INVALID_TRANSITION"
	ErrCodeRequirementsNotMet = "LIFECYCLE_REQUIREMENTS_NOT_MET"
	ErrCodePreconditionFailed = "STORE_PRECONDITION_FAILED"
	ErrCodeSeatUnavailable    = "LIFECYCLE_SEAT_UNAVAILABLE"
	ErrCodeTransientStore     = "STORE_TRANSIENT"
	ErrCodeTransactionFailed  = "LIFECYCLE_TX_FAILED"
	ErrCodeMaxRetries         = "LIFECYCLE_MAX_RETRIES"
	ErrCodeNotFound           = "LIFECYCLE_NOT_FOUND"
)

var (
	// ErrInvalidTransition marks a requested edge absent from the registry.
	ErrInvalidTransition = apperrors.New("invalid transition", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidTransition)
	// ErrRequirementsNotMet marks a legal edge whose gating facts failed.
	ErrRequirementsNotMet = apperrors.New("requirements not met", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeRequirementsNotMet)
	// ErrPreconditionFailed marks a conditional mutation that matched no row.
	ErrPreconditionFailed = apperrors.New("precondition failed", apperrors.CategoryConflict).
				WithTextCode(ErrCodePreconditionFailed)
	// ErrSeatUnavailable marks a seat claim that lost the race.
	ErrSeatUnavailable = apperrors.New("seat unavailable", apperrors.CategoryConflict).
				WithTextCode(ErrCodeSeatUnavailable)
	// ErrTransientStore marks a store failure worth retrying.
	ErrTransientStore = apperrors.New("transient store failure", apperrors.CategoryExternal).
				WithTextCode(ErrCodeTransientStore)
	// ErrTransactionFailed marks a multi-step mutation that failed partway.
	ErrTransactionFailed = apperrors.New("transaction failed", apperrors.CategoryHandler).
				WithTextCode(ErrCodeTransactionFailed)
	// ErrMaxRetriesExceeded marks an exhausted retry budget.
	ErrMaxRetriesExceeded = apperrors.New("max retries exceeded", apperrors.CategoryExternal).
				WithTextCode(ErrCodeMaxRetries)
	// ErrNotFound marks a missing entity row.
	ErrNotFound = apperrors.New("entity not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)
)

// NewInvalidTransition builds the invalid-transition error carrying the
// entity kind, the requested edge, and the allowed target set.
func NewInvalidTransition(kind EntityKind, from, to State, allowed []State) *apperrors.Error {
	targets := make([]string, 0, len(allowed))
	for _, state := range allowed {
		targets = append(targets, string(state))
	}
	return CloneError(ErrInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", kind, from, to),
		nil,
		map[string]any{
			"entity_kind": string(kind),
			"from":        string(from),
			"to":          string(to),
			"allowed":     targets,
		})
}

// NewRequirementsNotMet builds the gating failure carrying every unmet
// reason. Reasons are human readable and enumerable by callers.
func NewRequirementsNotMet(reasons []string) *apperrors.Error {
	return CloneError(ErrRequirementsNotMet,
		"requirements not met: "+strings.Join(reasons, "; "),
		nil,
		map[string]any{"unmet_reasons": append([]string(nil), reasons...)})
}

// NewTransient wraps a store failure as retry-eligible.
func NewTransient(source error, message string) *apperrors.Error {
	return CloneError(ErrTransientStore, message, source, nil)
}

// NewMaxRetriesExceeded wraps the last underlying error after the retry
// budget is exhausted.
func NewMaxRetriesExceeded(attempts int, last error) *apperrors.Error {
	return CloneError(ErrMaxRetriesExceeded,
		fmt.Sprintf("operation failed after %d attempt(s)", attempts),
		last,
		map[string]any{"attempts": attempts})
}

// CloneError derives a taxonomy error from one of the package bases,
// overriding message, source, and metadata.
func CloneError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrPreconditionFailed
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode extracts the taxonomy text code from err, or "".
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsTransient reports whether err is classified as retry-eligible.
func IsTransient(err error) bool {
	return ErrorCode(err) == ErrCodeTransientStore
}

// IsValidation reports whether err is a validation-class outcome:
// expected, user-facing, and never retried.
func IsValidation(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeInvalidTransition, ErrCodeRequirementsNotMet,
		ErrCodePreconditionFailed, ErrCodeSeatUnavailable, ErrCodeNotFound:
		return true
	}
	return false
}

// UnmetReasons extracts the unmet requirement reasons from err, or nil
// when err is not a requirements failure.
func UnmetReasons(err error) []string {
	var ge *apperrors.Error
	if !stderrors.As(err, &ge) || ge.TextCode != ErrCodeRequirementsNotMet {
		return nil
	}
	switch reasons := ge.Metadata["unmet_reasons"].(type) {
	case []string:
		return reasons
	case []any:
		out := make([]string, 0, len(reasons))
		for _, reason := range reasons {
			out = append(out, fmt.Sprint(reason))
		}
		return out
	}
	return nil
}
