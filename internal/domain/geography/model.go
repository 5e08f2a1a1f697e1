package geography

import (
	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/record"
)

// Country is identified by its ISO-3166 alpha-3 code.
type Country struct {
	record.Meta
	ISO2        string     `json:"iso2" validate:"required,len=2,alpha"`
	Name        string     `json:"name" validate:"required,max=100"`
	PhonePrefix string     `json:"phone_prefix,omitempty" validate:"max=10"`
	CurrencyID  *uuid.UUID `json:"currency_id,omitempty"`
}

type Region struct {
	record.Meta
	Name      string    `json:"name" validate:"required,max=100"`
	CountryID uuid.UUID `json:"country_id" validate:"required"`
}

type City struct {
	record.Meta
	Name       string    `json:"name" validate:"required,max=100"`
	RegionID   uuid.UUID `json:"region_id" validate:"required"`
	PostalCode string    `json:"postal_code,omitempty" validate:"max=20"`
}

type Sector struct {
	record.Meta
	Name   string    `json:"name" validate:"required,max=100"`
	CityID uuid.UUID `json:"city_id" validate:"required"`
}
