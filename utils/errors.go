package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// NewMissingPropertyError is used when a decoded record lacks a required field.
func NewMissingPropertyError(element, property string) error {
	return errors.Errorf("%s is missing property %q", element, property)
}
