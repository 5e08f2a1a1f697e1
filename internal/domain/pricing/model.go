package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/record"
)

// Fee formulas.
const (
	FeeFixed   = "FIXED"
	FeePercent = "PERCENT"
	FeeMixed   = "MIXED"
)

// Tax bases.
const (
	BaseFee    = "FEE"
	BaseAmount = "AMOUNT"
)

var hundred = decimal.NewFromInt(100)

// Corridor is a remittance route: origin country, destination country and
// the currency the amount is expressed in.
type Corridor struct {
	record.Meta
	OriginCountryID      uuid.UUID `json:"origin_country_id" validate:"required"`
	DestinationCountryID uuid.UUID `json:"destination_country_id" validate:"required"`
	CurrencyID           uuid.UUID `json:"currency_id" validate:"required"`
}

// Contract binds a partner to a set of tiers for a period.
type Contract struct {
	record.Meta
	PartnerID   uuid.UUID  `json:"partner_id" validate:"required"`
	Description string     `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date" validate:"required"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// ActiveAt reports whether at falls within the contract period, bounds
// included.
func (c *Contract) ActiveAt(at time.Time) bool {
	return within(at, c.StartDate, c.EndDate)
}

// PricingRule is a fee formula.
type PricingRule struct {
	record.Meta
	Name        string              `json:"name" validate:"required,max=100"`
	FeeType     string              `json:"fee_type" validate:"required,oneof=FIXED PERCENT MIXED"`
	FixedAmount decimal.Decimal     `json:"fixed_amount"`
	Percent     decimal.Decimal     `json:"percent"`
	MinFee      decimal.NullDecimal `json:"min_fee"`
	MaxFee      decimal.NullDecimal `json:"max_fee"`
}

func (r *PricingRule) check() error {
	if r.FixedAmount.IsNegative() {
		return apierr.Invalid("fixed_amount must not be negative")
	}
	if r.Percent.IsNegative() || r.Percent.GreaterThan(hundred) {
		return apierr.Invalid("percent must be between 0 and 100")
	}
	if r.MinFee.Valid && r.MinFee.Decimal.IsNegative() {
		return apierr.Invalid("min_fee must not be negative")
	}
	if r.MaxFee.Valid && r.MaxFee.Decimal.IsNegative() {
		return apierr.Invalid("max_fee must not be negative")
	}
	if r.MinFee.Valid && r.MaxFee.Valid && r.MinFee.Decimal.GreaterThan(r.MaxFee.Decimal) {
		return apierr.Invalid("min_fee must not exceed max_fee")
	}
	return nil
}

// Fee applies the formula to amount and clamps the result into
// [min_fee, max_fee]. The result is not rounded.
func (r *PricingRule) Fee(amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch r.FeeType {
	case FeeFixed:
		fee = r.FixedAmount
	case FeePercent:
		fee = amount.Mul(r.Percent).Div(hundred)
	case FeeMixed:
		fee = r.FixedAmount.Add(amount.Mul(r.Percent).Div(hundred))
	}
	if r.MinFee.Valid && fee.LessThan(r.MinFee.Decimal) {
		fee = r.MinFee.Decimal
	}
	if r.MaxFee.Valid && fee.GreaterThan(r.MaxFee.Decimal) {
		fee = r.MaxFee.Decimal
	}
	return fee
}

// Tier selects a pricing rule within a contract. Nil criteria match any
// request value.
type Tier struct {
	record.Meta
	ContractID    uuid.UUID       `json:"contract_id" validate:"required"`
	PricingRuleID uuid.UUID       `json:"pricing_rule_id" validate:"required"`
	ChannelID     *uuid.UUID      `json:"channel_id,omitempty"`
	AffiliateID   *uuid.UUID      `json:"affiliate_id,omitempty"`
	CorridorID    *uuid.UUID      `json:"corridor_id,omitempty"`
	ServiceID     *uuid.UUID      `json:"service_id,omitempty"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
	Priority      int             `json:"priority"`
}

func (t *Tier) check() error {
	if t.MinAmount.IsNegative() || t.MaxAmount.IsNegative() {
		return apierr.Invalid("min_amount and max_amount must not be negative")
	}
	if t.MinAmount.GreaterThan(t.MaxAmount) {
		return apierr.Invalid("min_amount must not exceed max_amount")
	}
	return nil
}

// Specificity is the number of criteria the tier constrains.
func (t *Tier) Specificity() int {
	n := 0
	for _, c := range []*uuid.UUID{t.ChannelID, t.AffiliateID, t.CorridorID, t.ServiceID} {
		if c != nil {
			n++
		}
	}
	return n
}

// TaxRule is a tax levied by a country, optionally for one service.
type TaxRule struct {
	record.Meta
	Name        string          `json:"name" validate:"required,max=100"`
	CountryID   uuid.UUID       `json:"country_id" validate:"required"`
	ServiceID   *uuid.UUID      `json:"service_id,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	TaxBase     string          `json:"base" validate:"required,oneof=FEE AMOUNT"`
	StartDate   time.Time       `json:"start_date" validate:"required"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
}

func (r *TaxRule) check() error {
	if r.Rate.IsNegative() || r.Rate.GreaterThan(hundred) {
		return apierr.Invalid("rate must be between 0 and 100")
	}
	if r.FixedAmount.IsNegative() {
		return apierr.Invalid("fixed_amount must not be negative")
	}
	return checkPeriod(r.StartDate, r.EndDate)
}

func (r *TaxRule) ActiveAt(at time.Time) bool {
	return within(at, r.StartDate, r.EndDate)
}

func checkPeriod(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return apierr.Invalid("end_date must not be before start_date")
	}
	return nil
}

func within(at, start time.Time, end *time.Time) bool {
	if at.Before(start) {
		return false
	}
	return end == nil || !at.After(*end)
}

func sameID(criterion, value *uuid.UUID) bool {
	if criterion == nil {
		return true
	}
	return value != nil && *value == *criterion
}
