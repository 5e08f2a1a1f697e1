package network

import (
	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/record"
)

// Partner is a remittance partner (sender, payer or both).
type Partner struct {
	record.Meta
	Name        string    `json:"name" validate:"required,max=150"`
	PartnerType string    `json:"partner_type" validate:"required,max=50"`
	CountryID   uuid.UUID `json:"country_id" validate:"required"`
	TaxNumber   string    `json:"tax_number,omitempty" validate:"max=50"`
	Email       string    `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone       string    `json:"phone,omitempty" validate:"max=30"`
}

// Agency is a point of sale of a partner.
type Agency struct {
	record.Meta
	Name      string     `json:"name" validate:"required,max=150"`
	PartnerID uuid.UUID  `json:"partner_id" validate:"required"`
	CityID    uuid.UUID  `json:"city_id" validate:"required"`
	SectorID  *uuid.UUID `json:"sector_id,omitempty"`
	Address   string     `json:"address,omitempty"`
	Phone     string     `json:"phone,omitempty" validate:"max=30"`
}

type Bank struct {
	record.Meta
	Name      string    `json:"name" validate:"required,max=150"`
	SwiftCode string    `json:"swift_code,omitempty"`
	CountryID uuid.UUID `json:"country_id" validate:"required"`
}

// SupportAccount is a settlement account a partner holds at a bank.
type SupportAccount struct {
	record.Meta
	PartnerID     uuid.UUID `json:"partner_id" validate:"required"`
	BankID        uuid.UUID `json:"bank_id" validate:"required"`
	CurrencyID    uuid.UUID `json:"currency_id" validate:"required"`
	AccountNumber string    `json:"account_number" validate:"required,max=50"`
	IBAN          string    `json:"iban,omitempty"`
	HolderName    string    `json:"holder_name,omitempty" validate:"max=150"`
}
