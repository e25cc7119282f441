package validate

import (
	"errors"
	"fmt"
)

// Kind classifies a validation failure.
type Kind string

// Validation failure kinds.
const (
	MissingRequired  Kind = "missing_required"
	TypeMismatch     Kind = "type_mismatch"
	RegexMismatch    Kind = "regex_mismatch"
	RangeViolation   Kind = "range_violation"
	UnknownParameter Kind = "unknown_parameter"
	PermissionDenied Kind = "permission_denied"
)

// Error describes why parameters were rejected.
type Error struct {
	Kind    Kind
	Tool    string
	Param   string
	Message string
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s", e.Param, e.Message)
	}
	return e.Message
}

// IsKind reports whether err is a validation Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var verr *Error
	return errors.As(err, &verr) && verr.Kind == kind
}

func newError(kind Kind, tool, param, format string, args ...any) *Error {
	return &Error{Kind: kind, Tool: tool, Param: param, Message: fmt.Sprintf(format, args...)}
}
