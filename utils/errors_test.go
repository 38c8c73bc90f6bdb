package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestErrors(t *testing.T) {
	test.That(t, NewUnexpectedTypeError(float64(0), "x").Error(), test.ShouldEqual, "expected float64 but got string")
	test.That(t, NewMissingPropertyError("vertex", "x").Error(), test.ShouldEqual, `vertex is missing property "x"`)
}
