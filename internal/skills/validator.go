package skills

import (
	"regexp"
	"unicode/utf8"
)

const (
	MaxNameLength   = 64
	MinDescLength   = 20
	MaxDescLength   = 1024
	MaxCompatLength = 500
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ReservedNames cannot be skill ids: skill_<id> would shadow a built-in tool.
var ReservedNames = map[string]bool{
	"list": true,
}

// ValidateManifest checks the fixed manifest schema.
func ValidateManifest(m Manifest) error {
	if err := validateName(m.ID); err != nil {
		return err
	}
	if err := validateDescription(m.Description); err != nil {
		return err
	}
	return validateCompatibility(m.Compatibility)
}

func validateName(name string) error {
	if name == "" {
		return ErrMissingName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	if ReservedNames[name] {
		return ErrReservedName
	}
	return nil
}

func validateDescription(desc string) error {
	n := utf8.RuneCountInString(desc)
	if n == 0 {
		return ErrMissingDesc
	}
	if n < MinDescLength {
		return ErrDescTooShort
	}
	if n > MaxDescLength {
		return ErrDescTooLong
	}
	return nil
}

func validateCompatibility(compat string) error {
	if utf8.RuneCountInString(compat) > MaxCompatLength {
		return ErrCompatTooLong
	}
	return nil
}
