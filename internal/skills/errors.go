package skills

import "errors"

var (
	ErrParseFailed     = errors.New("failed to parse SKILL.md")
	ErrMissingName     = errors.New("missing required field: name")
	ErrMissingDesc     = errors.New("missing required field: description")
	ErrInvalidName     = errors.New("invalid skill name")
	ErrReservedName    = errors.New("skill name is reserved")
	ErrNameTooLong     = errors.New("name exceeds 64 characters")
	ErrDescTooShort    = errors.New("description is shorter than 20 characters")
	ErrDescTooLong     = errors.New("description exceeds 1024 characters")
	ErrCompatTooLong   = errors.New("compatibility exceeds 500 characters")
	ErrDuplicateID     = errors.New("duplicate skill name")
	ErrInvalidToolList = errors.New("allowed-tools must be a string or a list of strings")
)
