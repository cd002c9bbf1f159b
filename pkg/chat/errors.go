package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidIdentifierError reports a missing or malformed conversation or
// persona identifier. The gateway surfaces it to the client as a validation
// error frame; the connection stays open.
type InvalidIdentifierError struct {
	Field string
	Value string
}

func (e *InvalidIdentifierError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("missing %s", e.Field)
	}
	return fmt.Sprintf("%s %q is not a valid UUID", e.Field, e.Value)
}

// IsInvalidIdentifier reports whether err is (or wraps) an
// InvalidIdentifierError.
func IsInvalidIdentifier(err error) bool {
	var target *InvalidIdentifierError
	return errors.As(err, &target)
}
