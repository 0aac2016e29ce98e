package functional

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrUserFunction    = errors.New("user function failed")
	ErrInvocationPanic = errors.New("functional: invocation panicked")
)

// KeyError is the failure of a user function for one key. It matches both
// ErrUserFunction and the error the function returned.
type KeyError struct {
	Key any
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key %v: %v: %v", e.Key, ErrUserFunction, e.Err)
}

func (e *KeyError) Unwrap() []error {
	return []error{ErrUserFunction, e.Err}
}

// KeyErrors lists the per-key failures combined in err.
func KeyErrors(err error) []*KeyError {
	var out []*KeyError
	for _, e := range multierr.Errors(err) {
		var ke *KeyError
		if errors.As(e, &ke) {
			out = append(out, ke)
		}
	}
	return out
}

func errUnexpected(res any) error {
	return fmt.Errorf("functional: unexpected chain result %T", res)
}
