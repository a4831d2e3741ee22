package lifecycle

import (
	"fmt"
	"strings"

	"awgman/pkg/obfuscation"
)

// NotFoundError reports an unknown server or client id. It is detected
// before any side effect occurs.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

// ValidationError carries every violated constraint for a request. Nothing
// is partially applied when it is returned.
type ValidationError struct {
	Violations []obfuscation.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ConflictError reports a resource conflict. Address-space exhaustion is the
// hard case; port and subnet overlap surface as warnings at creation instead.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s conflict: %s", e.Resource, e.Detail) }

func violation(field, format string, args ...interface{}) obfuscation.Violation {
	return obfuscation.Violation{Field: field, Message: fmt.Sprintf(format, args...)}
}
