package model

import (
	"strings"
	"unicode/utf8"

	"duffel/pkg/fault"
)

const (
	maxNameLength = 200
	maxQuantity   = 999
)

// ValidateName checks an item or container name. The returned message is
// shown to users verbatim, so it names the field and the rule.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fault.New(fault.CodeValidation, "name must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return fault.Newf(fault.CodeValidation, "name must not exceed %d characters", maxNameLength)
	}
	return nil
}

// ValidateQuantity checks an item quantity.
func ValidateQuantity(q int) error {
	if q < 1 {
		return fault.New(fault.CodeValidation, "quantity must be at least 1")
	}
	if q > maxQuantity {
		return fault.Newf(fault.CodeValidation, "quantity must not exceed %d", maxQuantity)
	}
	return nil
}

// Validate checks the fields a patch sets. Unset fields are not examined.
func (p Patch) Validate() error {
	if p.IsZero() {
		return fault.New(fault.CodeValidation, "patch must change at least one field")
	}
	if p.Name != nil {
		if err := ValidateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Quantity != nil {
		if err := ValidateQuantity(*p.Quantity); err != nil {
			return err
		}
	}
	return nil
}
