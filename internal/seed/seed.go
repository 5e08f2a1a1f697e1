package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refdata/refdata/internal/domain/geography"
	"github.com/refdata/refdata/internal/domain/network"
	"github.com/refdata/refdata/internal/domain/parameter"
	"github.com/refdata/refdata/internal/domain/pricing"
	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/record"
)

// Services are the module services the seeder writes through, so that
// seeded rows pass the same checks as API writes.
type Services struct {
	Parameters *parameter.Service
	Geography  *geography.Service
	Network    *network.Service
	Pricing    *pricing.Service
}

type Counts struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// Report counts the outcome per entity.
type Report map[string]*Counts

func (r Report) add(entity string, created bool) {
	c, ok := r[entity]
	if !ok {
		c = &Counts{}
		r[entity] = c
	}
	if created {
		c.Created++
	} else {
		c.Existing++
	}
}

// Entities lists the entities of the report in a stable order.
func (r Report) Entities() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type seeder struct {
	svc    Services
	report Report
}

// Apply creates every record of f that does not exist yet. Records are
// matched on their code; existing ones are left untouched.
func Apply(ctx context.Context, svc Services, f *Fixture) (Report, error) {
	s := &seeder{svc: svc, report: Report{}}
	steps := []func(context.Context, *Fixture) error{
		s.currencies, s.paramTypes, s.params,
		s.countries, s.regions, s.cities,
		s.partners,
		s.corridors, s.pricingRules, s.contracts, s.tiers, s.taxRules,
	}
	for _, step := range steps {
		if err := step(ctx, f); err != nil {
			return s.report, err
		}
	}
	return s.report, nil
}

// ensure creates e unless a row with its code already exists in scope and
// returns the id of the row.
func ensure[T record.Entity](ctx context.Context, r Report, svc *crud.Service[T], scope map[string]string, e T) (uuid.UUID, error) {
	code := e.Base().Code
	existing, err := svc.GetByCode(ctx, code, scope)
	if err == nil {
		r.add(svc.Entity(), false)
		return existing.Base().ID, nil
	}
	if !errors.Is(err, apierr.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("look up %s %s: %w", svc.Entity(), code, err)
	}
	if err := svc.Create(ctx, e); err != nil {
		return uuid.Nil, fmt.Errorf("seed %s %s: %w", svc.Entity(), code, err)
	}
	r.add(svc.Entity(), true)
	return e.Base().ID, nil
}

// ref resolves a code to the id of a live row.
func ref[T record.Entity](ctx context.Context, svc *crud.Service[T], field, code string, scope map[string]string) (uuid.UUID, error) {
	e, err := svc.GetByCode(ctx, code, scope)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q: %w", field, code, err)
	}
	return e.Base().ID, nil
}

func optRef[T record.Entity](ctx context.Context, svc *crud.Service[T], field, code string) (*uuid.UUID, error) {
	if code == "" {
		return nil, nil
	}
	id, err := ref(ctx, svc, field, code, nil)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func amount(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apierr.Invalid("%s: %q is not a number", field, raw)
	}
	return d, nil
}

func optAmount(field, raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := amount(field, raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func (s *seeder) currencies(ctx context.Context, f *Fixture) error {
	svc := s.svc.Parameters.Currencies
	for _, in := range f.Currencies {
		c := svc.New()
		c.Code, c.Name, c.Symbol = in.Code, in.Name, in.Symbol
		if in.Decimals != nil {
			c.Decimals = *in.Decimals
		}
		if _, err := ensure(ctx, s.report, svc, nil, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) paramTypes(ctx context.Context, f *Fixture) error {
	svc := s.svc.Parameters.ParamTypes
	for _, in := range f.ParamTypes {
		pt := svc.New()
		pt.Code, pt.Name, pt.Description = in.Code, in.Name, in.Description
		if _, err := ensure(ctx, s.report, svc, nil, pt); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) paramScope(ctx context.Context, typeCode string) (map[string]string, uuid.UUID, error) {
	typeID, err := ref(ctx, s.svc.Parameters.ParamTypes, "type", typeCode, nil)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return map[string]string{"param_type_id": typeID.String()}, typeID, nil
}

func (s *seeder) params(ctx context.Context, f *Fixture) error {
	svc := s.svc.Parameters.Params
	for _, in := range f.Params {
		scope, typeID, err := s.paramScope(ctx, in.Type)
		if err != nil {
			return fmt.Errorf("param %s: %w", in.Code, err)
		}
		p := svc.New()
		p.Code, p.ParamTypeID, p.Label, p.Value, p.SortOrder = in.Code, typeID, in.Label, in.Value, in.SortOrder
		if _, err := ensure(ctx, s.report, svc, scope, p); err != nil {
			return err
		}
	}
	return nil
}

// param resolves an optional param code of the given type.
func (s *seeder) param(ctx context.Context, typeCode, field, code string) (*uuid.UUID, error) {
	if code == "" {
		return nil, nil
	}
	scope, _, err := s.paramScope(ctx, typeCode)
	if err != nil {
		return nil, err
	}
	id, err := ref(ctx, s.svc.Parameters.Params, field, code, scope)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *seeder) countries(ctx context.Context, f *Fixture) error {
	svc := s.svc.Geography.Countries
	for _, in := range f.Countries {
		c := svc.New()
		c.Code, c.ISO2, c.Name, c.PhonePrefix = in.Code, in.ISO2, in.Name, in.PhonePrefix
		cur, err := optRef(ctx, s.svc.Parameters.Currencies, "currency", in.Currency)
		if err != nil {
			return fmt.Errorf("country %s: %w", in.Code, err)
		}
		c.CurrencyID = cur
		if _, err := ensure(ctx, s.report, svc, nil, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) regions(ctx context.Context, f *Fixture) error {
	svc := s.svc.Geography.Regions
	for _, in := range f.Regions {
		country, err := ref(ctx, s.svc.Geography.Countries, "country", in.Country, nil)
		if err != nil {
			return fmt.Errorf("region %s: %w", in.Code, err)
		}
		r := svc.New()
		r.Code, r.Name, r.CountryID = in.Code, in.Name, country
		if _, err := ensure(ctx, s.report, svc, map[string]string{"country_id": country.String()}, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) cities(ctx context.Context, f *Fixture) error {
	svc := s.svc.Geography.Cities
	for _, in := range f.Cities {
		region, err := ref(ctx, s.svc.Geography.Regions, "region", in.Region, nil)
		if err != nil {
			return fmt.Errorf("city %s: %w", in.Code, err)
		}
		c := svc.New()
		c.Code, c.Name, c.RegionID, c.PostalCode = in.Code, in.Name, region, in.PostalCode
		if _, err := ensure(ctx, s.report, svc, map[string]string{"region_id": region.String()}, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) partners(ctx context.Context, f *Fixture) error {
	svc := s.svc.Network.Partners
	for _, in := range f.Partners {
		country, err := ref(ctx, s.svc.Geography.Countries, "country", in.Country, nil)
		if err != nil {
			return fmt.Errorf("partner %s: %w", in.Code, err)
		}
		p := svc.New()
		p.Code, p.Name, p.PartnerType, p.CountryID, p.Email = in.Code, in.Name, in.PartnerType, country, in.Email
		if _, err := ensure(ctx, s.report, svc, nil, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) corridors(ctx context.Context, f *Fixture) error {
	svc := s.svc.Pricing.Corridors
	countries := s.svc.Geography.Countries
	for _, in := range f.Corridors {
		origin, err := ref(ctx, countries, "origin", in.Origin, nil)
		if err != nil {
			return fmt.Errorf("corridor %s: %w", in.Code, err)
		}
		dest, err := ref(ctx, countries, "destination", in.Destination, nil)
		if err != nil {
			return fmt.Errorf("corridor %s: %w", in.Code, err)
		}
		cur, err := ref(ctx, s.svc.Parameters.Currencies, "currency", in.Currency, nil)
		if err != nil {
			return fmt.Errorf("corridor %s: %w", in.Code, err)
		}
		c := svc.New()
		c.Code, c.OriginCountryID, c.DestinationCountryID, c.CurrencyID = in.Code, origin, dest, cur
		if _, err := ensure(ctx, s.report, svc, nil, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) pricingRules(ctx context.Context, f *Fixture) error {
	svc := s.svc.Pricing.PricingRules
	for _, in := range f.PricingRules {
		r := svc.New()
		r.Code, r.Name, r.FeeType = in.Code, in.Name, in.FeeType
		var err error
		if r.FixedAmount, err = amount("fixed_amount", in.FixedAmount); err != nil {
			return fmt.Errorf("pricing rule %s: %w", in.Code, err)
		}
		if r.Percent, err = amount("percent", in.Percent); err != nil {
			return fmt.Errorf("pricing rule %s: %w", in.Code, err)
		}
		if r.MinFee, err = optAmount("min_fee", in.MinFee); err != nil {
			return fmt.Errorf("pricing rule %s: %w", in.Code, err)
		}
		if r.MaxFee, err = optAmount("max_fee", in.MaxFee); err != nil {
			return fmt.Errorf("pricing rule %s: %w", in.Code, err)
		}
		if _, err := ensure(ctx, s.report, svc, nil, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) contracts(ctx context.Context, f *Fixture) error {
	svc := s.svc.Pricing.Contracts
	for _, in := range f.Contracts {
		partner, err := ref(ctx, s.svc.Network.Partners, "partner", in.Partner, nil)
		if err != nil {
			return fmt.Errorf("contract %s: %w", in.Code, err)
		}
		c := svc.New()
		c.Code, c.PartnerID, c.Description, c.StartDate, c.EndDate = in.Code, partner, in.Description, in.StartDate, in.EndDate
		if _, err := ensure(ctx, s.report, svc, nil, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) tiers(ctx context.Context, f *Fixture) error {
	svc := s.svc.Pricing.Tiers
	for _, in := range f.Tiers {
		t := svc.New()
		t.Code, t.Priority = in.Code, in.Priority
		if err := s.fillTier(ctx, t, in); err != nil {
			return fmt.Errorf("tier %s: %w", in.Code, err)
		}
		if _, err := ensure(ctx, s.report, svc, nil, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) fillTier(ctx context.Context, t *pricing.Tier, in Tier) error {
	var err error
	if t.ContractID, err = ref(ctx, s.svc.Pricing.Contracts, "contract", in.Contract, nil); err != nil {
		return err
	}
	if t.PricingRuleID, err = ref(ctx, s.svc.Pricing.PricingRules, "pricing_rule", in.PricingRule, nil); err != nil {
		return err
	}
	if t.CorridorID, err = optRef(ctx, s.svc.Pricing.Corridors, "corridor", in.Corridor); err != nil {
		return err
	}
	if t.AffiliateID, err = optRef(ctx, s.svc.Network.Partners, "affiliate", in.Affiliate); err != nil {
		return err
	}
	if t.ChannelID, err = s.param(ctx, parameter.TypeChannel, "channel", in.Channel); err != nil {
		return err
	}
	if t.ServiceID, err = s.param(ctx, parameter.TypeService, "service", in.Service); err != nil {
		return err
	}
	if t.MinAmount, err = amount("min_amount", in.MinAmount); err != nil {
		return err
	}
	t.MaxAmount, err = amount("max_amount", in.MaxAmount)
	return err
}

func (s *seeder) taxRules(ctx context.Context, f *Fixture) error {
	svc := s.svc.Pricing.TaxRules
	for _, in := range f.TaxRules {
		country, err := ref(ctx, s.svc.Geography.Countries, "country", in.Country, nil)
		if err != nil {
			return fmt.Errorf("tax rule %s: %w", in.Code, err)
		}
		r := svc.New()
		r.Code, r.Name, r.CountryID, r.TaxBase = in.Code, in.Name, country, in.Base
		r.StartDate, r.EndDate = in.StartDate, in.EndDate
		if r.ServiceID, err = s.param(ctx, parameter.TypeService, "service", in.Service); err != nil {
			return fmt.Errorf("tax rule %s: %w", in.Code, err)
		}
		if r.Rate, err = amount("rate", in.Rate); err != nil {
			return fmt.Errorf("tax rule %s: %w", in.Code, err)
		}
		if r.FixedAmount, err = amount("fixed_amount", in.FixedAmount); err != nil {
			return fmt.Errorf("tax rule %s: %w", in.Code, err)
		}
		if _, err := ensure(ctx, s.report, svc, nil, r); err != nil {
			return err
		}
	}
	return nil
}
