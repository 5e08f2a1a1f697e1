package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refdata/refdata/internal/platform/apierr"
)

var (
	ErrCorridorInactive = fmt.Errorf("corridor is not active: %w", apierr.ErrUnprocessable)
	ErrNoContract       = fmt.Errorf("no active contract: %w", apierr.ErrUnprocessable)
	ErrNoTier           = fmt.Errorf("no matching tier: %w", apierr.ErrUnprocessable)
)

// Currency is the part of a currency the resolver needs.
type Currency struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Decimals int       `json:"decimals"`
}

// Snapshot is everything needed to price one partner on one corridor.
// Deleted rows are never part of it; disabled ones may be.
type Snapshot struct {
	Corridor  *Corridor      `json:"corridor"`
	Currency  Currency       `json:"currency"`
	Contracts []*Contract    `json:"contracts"`
	Tiers     []*Tier        `json:"tiers"`
	Rules     []*PricingRule `json:"rules"`
	Taxes     []*TaxRule     `json:"taxes"`
}

type QuoteRequest struct {
	PartnerID   uuid.UUID       `json:"partner_id" validate:"required"`
	ChannelID   *uuid.UUID      `json:"channel_id,omitempty"`
	AffiliateID *uuid.UUID      `json:"affiliate_id,omitempty"`
	CorridorID  uuid.UUID       `json:"corridor_id" validate:"required"`
	ServiceID   *uuid.UUID      `json:"service_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	At          time.Time       `json:"at"`
}

type Ref struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
}

type TaxLine struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Base        string          `json:"base"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Rate        decimal.Decimal `json:"rate"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	Amount      decimal.Decimal `json:"amount"`
}

type Quote struct {
	Contract    Ref             `json:"contract"`
	Tier        Ref             `json:"tier"`
	PricingRule Ref             `json:"pricing_rule"`
	Corridor    Ref             `json:"corridor"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Taxes       []TaxLine       `json:"taxes"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	TotalCharge decimal.Decimal `json:"total_charge"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

// Resolve prices req against s. req.At must be set; it is both the
// effective date and the reported resolution time.
func Resolve(s *Snapshot, req QuoteRequest) (*Quote, error) {
	if !req.Amount.IsPositive() {
		return nil, apierr.Invalid("amount must be greater than zero")
	}
	if s.Corridor == nil || !s.Corridor.Enabled || s.Corridor.ID != req.CorridorID {
		return nil, fmt.Errorf("corridor %s: %w", req.CorridorID, ErrCorridorInactive)
	}
	at := req.At

	contract := activeContract(s.Contracts, req.PartnerID, at)
	if contract == nil {
		return nil, fmt.Errorf("partner %s at %s: %w", req.PartnerID, at.Format(time.RFC3339), ErrNoContract)
	}

	rules := make(map[uuid.UUID]*PricingRule, len(s.Rules))
	for _, r := range s.Rules {
		if r.Enabled {
			rules[r.ID] = r
		}
	}
	tier := matchTier(s.Tiers, rules, contract.ID, req)
	if tier == nil {
		return nil, fmt.Errorf("contract %s, amount %s: %w", contract.Code, req.Amount, ErrNoTier)
	}
	rule := rules[tier.PricingRuleID]

	places := int32(s.Currency.Decimals)
	fee := rule.Fee(req.Amount).Round(places)

	taxes := applicableTaxes(s.Taxes, s.Corridor.OriginCountryID, req.ServiceID, at)
	lines := make([]TaxLine, 0, len(taxes))
	total := decimal.Zero
	for _, t := range taxes {
		base := req.Amount
		if t.TaxBase == BaseFee {
			base = fee
		}
		amount := t.FixedAmount.Add(base.Mul(t.Rate).Div(hundred)).Round(places)
		total = total.Add(amount)
		lines = append(lines, TaxLine{
			Code:        t.Code,
			Name:        t.Name,
			Base:        t.TaxBase,
			BaseAmount:  base,
			Rate:        t.Rate,
			FixedAmount: t.FixedAmount,
			Amount:      amount,
		})
	}

	return &Quote{
		Contract:    Ref{ID: contract.ID, Code: contract.Code},
		Tier:        Ref{ID: tier.ID, Code: tier.Code},
		PricingRule: Ref{ID: rule.ID, Code: rule.Code},
		Corridor:    Ref{ID: s.Corridor.ID, Code: s.Corridor.Code},
		Currency:    s.Currency.Code,
		Amount:      req.Amount,
		Fee:         fee,
		Taxes:       lines,
		TotalTax:    total,
		TotalCharge: req.Amount.Add(fee).Add(total),
		ResolvedAt:  at,
	}, nil
}

// activeContract picks the enabled contract in force at at with the latest
// start, then the latest creation.
func activeContract(contracts []*Contract, partnerID uuid.UUID, at time.Time) *Contract {
	var best *Contract
	for _, c := range contracts {
		if !c.Enabled || c.PartnerID != partnerID || !c.ActiveAt(at) {
			continue
		}
		if best == nil || laterContract(c, best) {
			best = c
		}
	}
	return best
}

func laterContract(a, b *Contract) bool {
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.After(b.StartDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Code < b.Code
}

func matchTier(tiers []*Tier, rules map[uuid.UUID]*PricingRule, contractID uuid.UUID, req QuoteRequest) *Tier {
	var candidates []*Tier
	for _, t := range tiers {
		if !t.Enabled || t.ContractID != contractID {
			continue
		}
		if _, ok := rules[t.PricingRuleID]; !ok {
			continue
		}
		if req.Amount.LessThan(t.MinAmount) || req.Amount.GreaterThan(t.MaxAmount) {
			continue
		}
		if !sameID(t.ChannelID, req.ChannelID) ||
			!sameID(t.AffiliateID, req.AffiliateID) ||
			!sameID(t.CorridorID, &req.CorridorID) ||
			!sameID(t.ServiceID, req.ServiceID) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if sa, sb := a.Specificity(), b.Specificity(); sa != sb {
			return sa > sb
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		wa, wb := a.MaxAmount.Sub(a.MinAmount), b.MaxAmount.Sub(b.MinAmount)
		if !wa.Equal(wb) {
			return wa.LessThan(wb)
		}
		return a.Code < b.Code
	})
	return candidates[0]
}

func applicableTaxes(rules []*TaxRule, countryID uuid.UUID, serviceID *uuid.UUID, at time.Time) []*TaxRule {
	var out []*TaxRule
	for _, r := range rules {
		if !r.Enabled || r.CountryID != countryID || !r.ActiveAt(at) {
			continue
		}
		if !sameID(r.ServiceID, serviceID) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
