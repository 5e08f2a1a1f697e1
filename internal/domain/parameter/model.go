package parameter

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/record"
)

// Well-known parameter type codes.
const (
	TypeChannel     = "CHANNEL"
	TypeService     = "SERVICE"
	TypePartnerType = "PARTNER_TYPE"
)

// Currency is an ISO-4217 currency.
type Currency struct {
	record.Meta
	Name     string `json:"name" validate:"required,max=100"`
	Symbol   string `json:"symbol,omitempty" validate:"max=10"`
	Decimals int    `json:"decimals" validate:"gte=0,lte=4"`
}

func newCurrency() *Currency {
	return &Currency{Meta: record.New(), Decimals: 2}
}

// ParamType groups parameters (channels, services, partner types...).
type ParamType struct {
	record.Meta
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty"`
}

// Param is a value of a parameter type. Its code is unique within the type.
type Param struct {
	record.Meta
	ParamTypeID uuid.UUID `json:"param_type_id" validate:"required"`
	Label       string    `json:"label" validate:"required,max=100"`
	Value       string    `json:"value,omitempty"`
	SortOrder   int       `json:"sort_order"`
}

// IdentityDocument is a kind of identity document accepted for customers
// of a country.
type IdentityDocument struct {
	record.Meta
	Name      string    `json:"name" validate:"required,max=100"`
	CountryID uuid.UUID `json:"country_id" validate:"required"`
	Pattern   string    `json:"pattern,omitempty"`
	MinLength *int      `json:"min_length,omitempty" validate:"omitempty,gte=0"`
	MaxLength *int      `json:"max_length,omitempty" validate:"omitempty,gte=1"`
	HasExpiry bool      `json:"has_expiry"`
}

func (d *IdentityDocument) check() error {
	if d.MinLength != nil && d.MaxLength != nil && *d.MinLength > *d.MaxLength {
		return fmt.Errorf("min_length %d exceeds max_length %d", *d.MinLength, *d.MaxLength)
	}
	if d.Pattern != "" {
		if _, err := regexp.Compile(d.Pattern); err != nil {
			return fmt.Errorf("pattern does not compile: %v", err)
		}
	}
	return nil
}

// NumberCheck is the outcome of validating a document number.
type NumberCheck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// CheckNumber applies the length and pattern rules of d to number.
func (d *IdentityDocument) CheckNumber(number string) NumberCheck {
	if number == "" {
		return NumberCheck{Reason: "number is empty"}
	}
	n := utf8.RuneCountInString(number)
	if d.MinLength != nil && n < *d.MinLength {
		return NumberCheck{Reason: fmt.Sprintf("number is shorter than %d characters", *d.MinLength)}
	}
	if d.MaxLength != nil && n > *d.MaxLength {
		return NumberCheck{Reason: fmt.Sprintf("number is longer than %d characters", *d.MaxLength)}
	}
	if d.Pattern != "" {
		re, err := regexp.Compile(anchor(d.Pattern))
		if err != nil {
			return NumberCheck{Reason: "document pattern is invalid"}
		}
		if !re.MatchString(number) {
			return NumberCheck{Reason: "number does not match the document format"}
		}
	}
	return NumberCheck{Valid: true}
}

// anchor makes the pattern match the whole number.
func anchor(p string) string {
	return `^(?:` + p + `)$`
}
