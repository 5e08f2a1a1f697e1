package pricing

import (
	"context"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/domain/parameter"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/record"
)

// ParamChecker verifies that an optional reference is a param of a type.
type ParamChecker interface {
	RequireParamOfType(ctx context.Context, field string, id *uuid.UUID, typeCode string) error
}

// Deps are the lookups into other modules.
type Deps struct {
	Countries  crud.Lookup
	Currencies crud.Lookup
	Partners   crud.Lookup
	Params     ParamChecker
}

type Service struct {
	Corridors    *crud.Service[*Corridor]
	Contracts    *crud.Service[*Contract]
	PricingRules *crud.Service[*PricingRule]
	Tiers        *crud.Service[*Tier]
	TaxRules     *crud.Service[*TaxRule]
}

func NewService(repos Repos, deps Deps, opts ...crud.Option) *Service {
	s := &Service{}

	s.Corridors = crud.NewService(CorridorTable, repos.Corridors, crud.Rules[*Corridor]{
		References: func(ctx context.Context, c *Corridor) error {
			if err := crud.RequireRef(ctx, "origin_country_id", &c.OriginCountryID, deps.Countries); err != nil {
				return err
			}
			if err := crud.RequireRef(ctx, "destination_country_id", &c.DestinationCountryID, deps.Countries); err != nil {
				return err
			}
			return crud.RequireRef(ctx, "currency_id", &c.CurrencyID, deps.Currencies)
		},
	}, opts...)

	s.Contracts = crud.NewService(ContractTable, repos.Contracts, crud.Rules[*Contract]{
		Normalize: func(c *Contract) {
			c.StartDate = c.StartDate.UTC()
			if c.EndDate != nil {
				end := c.EndDate.UTC()
				c.EndDate = &end
			}
		},
		Validate: func(c *Contract) error {
			return checkPeriod(c.StartDate, c.EndDate)
		},
		References: func(ctx context.Context, c *Contract) error {
			return crud.RequireRef(ctx, "partner_id", &c.PartnerID, deps.Partners)
		},
	}, opts...)

	s.PricingRules = crud.NewService(PricingRuleTable, repos.PricingRules, crud.Rules[*PricingRule]{
		Normalize: func(r *PricingRule) {
			r.FeeType = record.NormalizeCode(r.FeeType)
		},
		Validate: (*PricingRule).check,
	}, opts...)

	s.Tiers = crud.NewService(TierTable, repos.Tiers, crud.Rules[*Tier]{
		Validate: (*Tier).check,
		References: func(ctx context.Context, t *Tier) error {
			if err := crud.RequireRef(ctx, "contract_id", &t.ContractID, repos.Contracts); err != nil {
				return err
			}
			if err := crud.RequireRef(ctx, "pricing_rule_id", &t.PricingRuleID, repos.PricingRules); err != nil {
				return err
			}
			if err := crud.RequireRef(ctx, "corridor_id", t.CorridorID, repos.Corridors); err != nil {
				return err
			}
			if err := crud.RequireRef(ctx, "affiliate_id", t.AffiliateID, deps.Partners); err != nil {
				return err
			}
			if err := deps.Params.RequireParamOfType(ctx, "channel_id", t.ChannelID, parameter.TypeChannel); err != nil {
				return err
			}
			return deps.Params.RequireParamOfType(ctx, "service_id", t.ServiceID, parameter.TypeService)
		},
	}, opts...)

	s.TaxRules = crud.NewService(TaxRuleTable, repos.TaxRules, crud.Rules[*TaxRule]{
		Normalize: func(r *TaxRule) {
			r.TaxBase = record.NormalizeCode(r.TaxBase)
			r.StartDate = r.StartDate.UTC()
			if r.EndDate != nil {
				end := r.EndDate.UTC()
				r.EndDate = &end
			}
		},
		Validate: (*TaxRule).check,
		References: func(ctx context.Context, r *TaxRule) error {
			if err := crud.RequireRef(ctx, "country_id", &r.CountryID, deps.Countries); err != nil {
				return err
			}
			return deps.Params.RequireParamOfType(ctx, "service_id", r.ServiceID, parameter.TypeService)
		},
	}, opts...)

	return s
}
