package odata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidInput indicates a malformed caller-supplied value.
var ErrInvalidInput = errors.New("invalid input")

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValidGuid reports whether value is a GUID in canonical 8-4-4-4-12
// hexadecimal form. Case is ignored; braces and URN prefixes are rejected.
func IsValidGuid(value string) bool {
	return guidPattern.MatchString(value)
}

// ValidateGuid returns value lowercased, or an error wrapping ErrInvalidInput
// naming field when value is not a canonical GUID.
func ValidateGuid(value, field string) (string, error) {
	if !IsValidGuid(value) {
		return "", fmt.Errorf("%w: invalid GUID format for %s: %q", ErrInvalidInput, field, value)
	}
	return strings.ToLower(value), nil
}
