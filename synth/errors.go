package synth

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError is returned for bad arguments or configuration, including a scene path that
// is not a directory. Nothing is written when it is returned.
type ConfigurationError struct {
	Err error
}

// NewConfigurationError returns a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Err: errors.Errorf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MissingInputError is returned when a required input file does not exist.
type MissingInputError struct {
	Path string
}

// NewMissingInputError returns a MissingInputError for path.
func NewMissingInputError(path string) error {
	return &MissingInputError{Path: path}
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input %q", e.Path)
}

// IOError is returned when reading an input or writing an output fails.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// NewIOError wraps err, which happened while doing op on path. A nil err stays nil.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
