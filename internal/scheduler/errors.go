package scheduler

import "errors"

var (
	// ErrEmptySlotSpace is returned when the grid has no days or no periods.
	ErrEmptySlotSpace = errors.New("slot space is empty")
	// ErrInvalidSlotSpace is returned for blank or duplicate day names.
	ErrInvalidSlotSpace = errors.New("invalid slot space")
	// ErrZeroModulo is returned when an offset is requested over an empty range.
	ErrZeroModulo = errors.New("offset modulo must be positive")
	// ErrInvalidRequirement flags a demand entry whose required count is not positive.
	ErrInvalidRequirement = errors.New("required periods must be positive")
	// ErrDuplicateRequirement flags a teacher listing the same class twice.
	ErrDuplicateRequirement = errors.New("duplicate class requirement")
	// ErrEmptyIdentifier flags a blank teacher or class id.
	ErrEmptyIdentifier = errors.New("teacher and class ids must not be blank")
)
