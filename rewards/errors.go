package rewards

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store when the requested record does not exist.
	ErrNotFound = errors.New("reward record not found")
	// ErrConflict is returned by Store.CreateAccount when the account already exists.
	ErrConflict = errors.New("reward account already exists")
	// ErrInvalidArgument reports caller input the ledger refuses to process.
	ErrInvalidArgument = errors.New("invalid argument")
)

// SystemError wraps an unexpected store failure. No coins are awarded when it is returned.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("rewards: %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsSystemError reports whether err is (or wraps) a *SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

func systemError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SystemError
	if errors.As(err, &se) || errors.Is(err, ErrInvalidArgument) {
		return err
	}
	return &SystemError{Op: op, Err: err}
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
