package pricing

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/record"
)

var CorridorTable = &crud.Table[*Corridor]{
	Entity:  "corridor",
	Name:    "corridor",
	Columns: []string{"origin_country_id", "destination_country_id", "currency_id"},
	Values: func(c *Corridor) []any {
		return []any{c.OriginCountryID, c.DestinationCountryID, c.CurrencyID}
	},
	Dest: func(c *Corridor) []any {
		return []any{&c.OriginCountryID, &c.DestinationCountryID, &c.CurrencyID}
	},
	New: func() *Corridor { return &Corridor{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"origin_country_id":      {Column: "origin_country_id", Kind: db.UUID},
		"destination_country_id": {Column: "destination_country_id", Kind: db.UUID},
		"currency_id":            {Column: "currency_id", Kind: db.UUID},
	}),
	Sortable: map[string]string{
		"code":       "code",
		"created_at": "created_at",
	},
	DefaultSort: "code",
	Unique: []crud.Unique{
		crud.CodeUnique(),
		{Name: "route", Columns: []string{"origin_country_id", "destination_country_id", "currency_id"}},
	},
	ReferencedBy: []db.Ref{{Table: "tier", Column: "corridor_id"}},
}

var ContractTable = &crud.Table[*Contract]{
	Entity:  "contract",
	Name:    "contract",
	Columns: []string{"partner_id", "description", "start_date", "end_date"},
	Values: func(c *Contract) []any {
		return []any{c.PartnerID, c.Description, c.StartDate, c.EndDate}
	},
	Dest: func(c *Contract) []any {
		return []any{&c.PartnerID, &c.Description, &c.StartDate, &c.EndDate}
	},
	New: func() *Contract { return &Contract{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"partner_id":  {Column: "partner_id", Kind: db.UUID},
		"description": {Column: "description", Kind: db.Contains},
	}),
	Extra: activeAt,
	Sortable: map[string]string{
		"code":       "code",
		"start_date": "start_date",
		"end_date":   "end_date",
		"created_at": "created_at",
	},
	DefaultSort:  "code",
	Unique:       []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{{Table: "tier", Column: "contract_id"}},
}

var PricingRuleTable = &crud.Table[*PricingRule]{
	Entity:  "pricing rule",
	Name:    "pricing_rule",
	Columns: []string{"name", "fee_type", "fixed_amount", "percent", "min_fee", "max_fee"},
	Values: func(r *PricingRule) []any {
		return []any{r.Name, r.FeeType, r.FixedAmount, r.Percent, r.MinFee, r.MaxFee}
	},
	Dest: func(r *PricingRule) []any {
		return []any{&r.Name, &r.FeeType, &r.FixedAmount, &r.Percent, &r.MinFee, &r.MaxFee}
	},
	New: func() *PricingRule { return &PricingRule{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":     {Column: "name", Kind: db.Contains},
		"fee_type": {Column: "fee_type", Kind: db.Code},
	}),
	Sortable: map[string]string{
		"code":       "code",
		"name":       "name",
		"created_at": "created_at",
	},
	DefaultSort:  "code",
	Unique:       []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{{Table: "tier", Column: "pricing_rule_id"}},
}

var TierTable = &crud.Table[*Tier]{
	Entity: "tier",
	Name:   "tier",
	Columns: []string{
		"contract_id", "pricing_rule_id", "channel_id", "affiliate_id",
		"corridor_id", "service_id", "min_amount", "max_amount", "priority",
	},
	Values: func(t *Tier) []any {
		return []any{t.ContractID, t.PricingRuleID, t.ChannelID, t.AffiliateID,
			t.CorridorID, t.ServiceID, t.MinAmount, t.MaxAmount, t.Priority}
	},
	Dest: func(t *Tier) []any {
		return []any{&t.ContractID, &t.PricingRuleID, &t.ChannelID, &t.AffiliateID,
			&t.CorridorID, &t.ServiceID, &t.MinAmount, &t.MaxAmount, &t.Priority}
	},
	New: func() *Tier { return &Tier{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"contract_id":     {Column: "contract_id", Kind: db.UUID},
		"pricing_rule_id": {Column: "pricing_rule_id", Kind: db.UUID},
		"channel_id":      {Column: "channel_id", Kind: db.UUID},
		"affiliate_id":    {Column: "affiliate_id", Kind: db.UUID},
		"corridor_id":     {Column: "corridor_id", Kind: db.UUID},
		"service_id":      {Column: "service_id", Kind: db.UUID},
		"priority":        {Column: "priority", Kind: db.Int},
	}),
	Sortable: map[string]string{
		"code":       "code",
		"priority":   "priority",
		"min_amount": "min_amount",
		"created_at": "created_at",
	},
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique()},
}

var TaxRuleTable = &crud.Table[*TaxRule]{
	Entity: "tax rule",
	Name:   "tax_rule",
	Columns: []string{
		"name", "country_id", "service_id", "rate", "fixed_amount", "base", "start_date", "end_date",
	},
	Values: func(r *TaxRule) []any {
		return []any{r.Name, r.CountryID, r.ServiceID, r.Rate, r.FixedAmount, r.TaxBase, r.StartDate, r.EndDate}
	},
	Dest: func(r *TaxRule) []any {
		return []any{&r.Name, &r.CountryID, &r.ServiceID, &r.Rate, &r.FixedAmount, &r.TaxBase, &r.StartDate, &r.EndDate}
	},
	New: func() *TaxRule { return &TaxRule{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":       {Column: "name", Kind: db.Contains},
		"country_id": {Column: "country_id", Kind: db.UUID},
		"service_id": {Column: "service_id", Kind: db.UUID},
		"base":       {Column: "base", Kind: db.Code},
	}),
	Extra: activeAt,
	Sortable: map[string]string{
		"code":       "code",
		"name":       "name",
		"start_date": "start_date",
		"created_at": "created_at",
	},
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique()},
}

// activeAt filters periodised rows on ?active_at=<RFC 3339 or YYYY-MM-DD>.
func activeAt(f map[string]string) (sq.Sqlizer, error) {
	raw := f["active_at"]
	if raw == "" {
		return nil, nil
	}
	at, err := parseInstant(raw)
	if err != nil {
		return nil, apierr.Invalid("active_at must be an RFC 3339 timestamp or a date")
	}
	return sq.And{
		sq.LtOrEq{"start_date": at},
		sq.Or{sq.Eq{"end_date": nil}, sq.GtOrEq{"end_date": at}},
	}, nil
}

func parseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

type Repos struct {
	Corridors    crud.Repository[*Corridor]
	Contracts    crud.Repository[*Contract]
	PricingRules crud.Repository[*PricingRule]
	Tiers        crud.Repository[*Tier]
	TaxRules     crud.Repository[*TaxRule]
}

func NewRepos(pool *pgxpool.Pool) Repos {
	return Repos{
		Corridors:    crud.NewPGRepository(pool, CorridorTable),
		Contracts:    crud.NewPGRepository(pool, ContractTable),
		PricingRules: crud.NewPGRepository(pool, PricingRuleTable),
		Tiers:        crud.NewPGRepository(pool, TierTable),
		TaxRules:     crud.NewPGRepository(pool, TaxRuleTable),
	}
}
