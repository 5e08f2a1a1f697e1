package geography

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

var CountryTable = &crud.Table[*Country]{
	Entity:  "country",
	Name:    "country",
	Columns: []string{"iso2", "name", "phone_prefix", "currency_id"},
	Values:  func(c *Country) []any { return []any{c.ISO2, c.Name, c.PhonePrefix, c.CurrencyID} },
	Dest:    func(c *Country) []any { return []any{&c.ISO2, &c.Name, &c.PhonePrefix, &c.CurrencyID} },
	New:     func() *Country { return &Country{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"iso2":        {Column: "iso2", Kind: db.Code},
		"name":        {Column: "name", Kind: db.Contains},
		"currency_id": {Column: "currency_id", Kind: db.UUID},
	}),
	Sortable:    sortable,
	DefaultSort: "code",
	Unique: []crud.Unique{
		crud.CodeUnique(),
		{Name: "iso2", Columns: []string{"iso2"}},
	},
	ReferencedBy: []db.Ref{
		{Table: "region", Column: "country_id"},
		{Table: "bank", Column: "country_id"},
		{Table: "partner", Column: "country_id"},
		{Table: "identity_document", Column: "country_id"},
		{Table: "corridor", Column: "origin_country_id"},
		{Table: "corridor", Column: "destination_country_id"},
		{Table: "tax_rule", Column: "country_id"},
	},
}

var RegionTable = &crud.Table[*Region]{
	Entity:  "region",
	Name:    "region",
	Columns: []string{"name", "country_id"},
	Values:  func(r *Region) []any { return []any{r.Name, r.CountryID} },
	Dest:    func(r *Region) []any { return []any{&r.Name, &r.CountryID} },
	New:     func() *Region { return &Region{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":       {Column: "name", Kind: db.Contains},
		"country_id": {Column: "country_id", Kind: db.UUID},
	}),
	Sortable:     sortable,
	DefaultSort:  "code",
	Unique:       []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{{Table: "city", Column: "region_id"}},
}

var CityTable = &crud.Table[*City]{
	Entity:  "city",
	Name:    "city",
	Columns: []string{"name", "region_id", "postal_code"},
	Values:  func(c *City) []any { return []any{c.Name, c.RegionID, c.PostalCode} },
	Dest:    func(c *City) []any { return []any{&c.Name, &c.RegionID, &c.PostalCode} },
	New:     func() *City { return &City{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":        {Column: "name", Kind: db.Contains},
		"region_id":   {Column: "region_id", Kind: db.UUID},
		"postal_code": {Column: "postal_code", Kind: db.Exact},
	}),
	Sortable:    sortable,
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{
		{Table: "sector", Column: "city_id"},
		{Table: "agency", Column: "city_id"},
	},
}

var SectorTable = &crud.Table[*Sector]{
	Entity:  "sector",
	Name:    "sector",
	Columns: []string{"name", "city_id"},
	Values:  func(s *Sector) []any { return []any{s.Name, s.CityID} },
	Dest:    func(s *Sector) []any { return []any{&s.Name, &s.CityID} },
	New:     func() *Sector { return &Sector{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":    {Column: "name", Kind: db.Contains},
		"city_id": {Column: "city_id", Kind: db.UUID},
	}),
	Sortable:     sortable,
	DefaultSort:  "code",
	Unique:       []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{{Table: "agency", Column: "sector_id"}},
}

type Repos struct {
	Countries crud.Repository[*Country]
	Regions   crud.Repository[*Region]
	Cities    crud.Repository[*City]
	Sectors   crud.Repository[*Sector]
}

func NewRepos(pool *pgxpool.Pool) Repos {
	return Repos{
		Countries: crud.NewPGRepository(pool, CountryTable),
		Regions:   crud.NewPGRepository(pool, RegionTable),
		Cities:    crud.NewPGRepository(pool, CityTable),
		Sectors:   crud.NewPGRepository(pool, SectorTable),
	}
}
