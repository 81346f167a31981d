package pair

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Stable domain error codes. Callers branch on these; the message text is
// for humans only.
const (
	CodeGaugeDeleted          = "GAUGE_DELETED"
	CodeSuffixInvalid         = "SUFFIX_INVALID"
	CodeTypeMismatch          = "TYPE_MISMATCH"
	CodeSpecMismatch          = "SPEC_MISMATCH"
	CodeOwnershipMismatch     = "OWNERSHIP_MISMATCH"
	CodeLinkAsymmetric        = "LINK_ASYMMETRIC"
	CodeNPTCompanionForbidden = "NPT_COMPANION_FORBIDDEN"
	CodeCompanionCheckedOut   = "COMPANION_CHECKED_OUT"
	CodeReplacementPendingQC  = "REPLACEMENT_PENDING_QC"
	CodeNotASpare             = "NOT_A_SPARE"
	CodeNotPaired             = "NOT_PAIRED"
	CodeStatusNotCascadable   = "STATUS_NOT_CASCADABLE"
)

// DomainError is a rejected operation with a stable code and the offending
// field values. It is surfaced to the caller verbatim and never retried.
type DomainError struct {
	Code    string
	Message string
	Fields  map[string]any
}

func (e *DomainError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// NewDomainError builds a DomainError with optional field metadata.
func NewDomainError(code, message string, fields map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, Fields: fields}
}

// IsDomainError reports whether err carries the given domain code.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

// NotFoundError means a referenced gauge does not exist (or is soft-deleted
// and thus invisible). Surfaced immediately, never retried.
type NotFoundError struct {
	GaugeID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gauge %d not found", e.GaugeID)
}

// IsNotFound reports whether err is a gauge-not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
