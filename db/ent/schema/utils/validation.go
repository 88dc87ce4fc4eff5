package utils

import (
	"fmt"
	"slices"
	"strings"
)

// EnumValidator is a field validator for string columns restricted to a
// fixed vocabulary (categories, flags, statuses).
func EnumValidator(allowed ...string) func(string) error {
	return func(v string) error {
		if slices.Contains(allowed, v) {
			return nil
		}
		return fmt.Errorf("invalid value %q (want one of: %s)", v, strings.Join(allowed, ", "))
	}
}
