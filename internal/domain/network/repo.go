package network

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/record"
)

var sortable = map[string]string{
	"code":       "code",
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

var PartnerTable = &crud.Table[*Partner]{
	Entity:  "partner",
	Name:    "partner",
	Columns: []string{"name", "partner_type", "country_id", "tax_number", "email", "phone"},
	Values: func(p *Partner) []any {
		return []any{p.Name, p.PartnerType, p.CountryID, p.TaxNumber, p.Email, p.Phone}
	},
	Dest: func(p *Partner) []any {
		return []any{&p.Name, &p.PartnerType, &p.CountryID, &p.TaxNumber, &p.Email, &p.Phone}
	},
	New: func() *Partner { return &Partner{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":         {Column: "name", Kind: db.Contains},
		"partner_type": {Column: "partner_type", Kind: db.Code},
		"country_id":   {Column: "country_id", Kind: db.UUID},
		"tax_number":   {Column: "tax_number", Kind: db.Exact},
	}),
	Sortable:    sortable,
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{
		{Table: "agency", Column: "partner_id"},
		{Table: "support_account", Column: "partner_id"},
		{Table: "contract", Column: "partner_id"},
		{Table: "tier", Column: "affiliate_id"},
	},
}

var AgencyTable = &crud.Table[*Agency]{
	Entity:  "agency",
	Name:    "agency",
	Columns: []string{"name", "partner_id", "city_id", "sector_id", "address", "phone"},
	Values: func(a *Agency) []any {
		return []any{a.Name, a.PartnerID, a.CityID, a.SectorID, a.Address, a.Phone}
	},
	Dest: func(a *Agency) []any {
		return []any{&a.Name, &a.PartnerID, &a.CityID, &a.SectorID, &a.Address, &a.Phone}
	},
	New: func() *Agency { return &Agency{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":       {Column: "name", Kind: db.Contains},
		"partner_id": {Column: "partner_id", Kind: db.UUID},
		"city_id":    {Column: "city_id", Kind: db.UUID},
		"sector_id":  {Column: "sector_id", Kind: db.UUID},
	}),
	Sortable:    sortable,
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique()},
}

var BankTable = &crud.Table[*Bank]{
	Entity:  "bank",
	Name:    "bank",
	Columns: []string{"name", "swift_code", "country_id"},
	Values:  func(b *Bank) []any { return []any{b.Name, b.SwiftCode, b.CountryID} },
	Dest:    func(b *Bank) []any { return []any{&b.Name, &b.SwiftCode, &b.CountryID} },
	New:     func() *Bank { return &Bank{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":       {Column: "name", Kind: db.Contains},
		"swift_code": {Column: "swift_code", Kind: db.Code},
		"country_id": {Column: "country_id", Kind: db.UUID},
	}),
	Sortable:    sortable,
	DefaultSort: "code",
	Unique: []crud.Unique{
		crud.CodeUnique(),
		{Name: "swift_code", Columns: []string{"swift_code"}},
	},
	ReferencedBy: []db.Ref{{Table: "support_account", Column: "bank_id"}},
}

var SupportAccountTable = &crud.Table[*SupportAccount]{
	Entity:  "support account",
	Name:    "support_account",
	Columns: []string{"partner_id", "bank_id", "currency_id", "account_number", "iban", "holder_name"},
	Values: func(a *SupportAccount) []any {
		return []any{a.PartnerID, a.BankID, a.CurrencyID, a.AccountNumber, a.IBAN, a.HolderName}
	},
	Dest: func(a *SupportAccount) []any {
		return []any{&a.PartnerID, &a.BankID, &a.CurrencyID, &a.AccountNumber, &a.IBAN, &a.HolderName}
	},
	New: func() *SupportAccount { return &SupportAccount{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"partner_id":     {Column: "partner_id", Kind: db.UUID},
		"bank_id":        {Column: "bank_id", Kind: db.UUID},
		"currency_id":    {Column: "currency_id", Kind: db.UUID},
		"account_number": {Column: "account_number", Kind: db.Exact},
	}),
	Sortable: map[string]string{
		"code":           "code",
		"account_number": "account_number",
		"created_at":     "created_at",
	},
	DefaultSort: "code",
	Unique: []crud.Unique{
		crud.CodeUnique(),
		{Name: "account_number within bank", Columns: []string{"bank_id", "account_number"}},
	},
}

type Repos struct {
	Partners        crud.Repository[*Partner]
	Agencies        crud.Repository[*Agency]
	Banks           crud.Repository[*Bank]
	SupportAccounts crud.Repository[*SupportAccount]
}

func NewRepos(pool *pgxpool.Pool) Repos {
	return Repos{
		Partners:        crud.NewPGRepository(pool, PartnerTable),
		Agencies:        crud.NewPGRepository(pool, AgencyTable),
		Banks:           crud.NewPGRepository(pool, BankTable),
		SupportAccounts: crud.NewPGRepository(pool, SupportAccountTable),
	}
}
