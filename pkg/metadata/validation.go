package metadata

import (
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds entry names in bytes.
const MaxNameLength = 255

// ValidateName checks that name can be used as an entry name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return NewInvalidArgumentError("name must not be empty")
	case len(name) > MaxNameLength:
		return NewInvalidArgumentError("name exceeds %d bytes", MaxNameLength)
	case !utf8.ValidString(name):
		return NewInvalidArgumentError("name is not valid UTF-8")
	case name == "." || name == "..":
		return NewInvalidArgumentError("name %q is reserved", name)
	case strings.ContainsAny(name, "/\x00"):
		return NewInvalidArgumentError("name must not contain '/' or NUL")
	}
	return nil
}

// ValidateAlias checks a filesystem alias: lowercase letters, digits, '-'
// and '_', starting with a letter or digit.
func ValidateAlias(alias string) error {
	if alias == "" || len(alias) > 64 {
		return NewInvalidArgumentError("alias must be 1 to 64 characters")
	}
	for i, r := range alias {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case (r == '-' || r == '_') && i > 0:
		default:
			return NewInvalidArgumentError("alias %q contains invalid character %q", alias, r)
		}
	}
	return nil
}

// ValidateCriterion checks that every part of the criterion is set.
func ValidateCriterion(c Criterion) error {
	if c.Issuer == "" || c.Attribute == "" || c.Value == "" {
		return NewInvalidArgumentError("criterion requires issuer, attribute and value")
	}
	return nil
}
