package parameter

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/record"
)

var sortByCode = map[string]string{
	"code":       "code",
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

var CurrencyTable = &crud.Table[*Currency]{
	Entity:  "currency",
	Name:    "currency",
	Columns: []string{"name", "symbol", "decimals"},
	Values:  func(c *Currency) []any { return []any{c.Name, c.Symbol, c.Decimals} },
	Dest:    func(c *Currency) []any { return []any{&c.Name, &c.Symbol, &c.Decimals} },
	New:     newCurrency,
	Filters: crud.Filters(db.Fields{
		"name": {Column: "name", Kind: db.Contains},
	}),
	Sortable:    sortByCode,
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{
		{Table: "country", Column: "currency_id"},
		{Table: "corridor", Column: "currency_id"},
		{Table: "support_account", Column: "currency_id"},
	},
}

var ParamTypeTable = &crud.Table[*ParamType]{
	Entity:  "param type",
	Name:    "param_type",
	Columns: []string{"name", "description"},
	Values:  func(t *ParamType) []any { return []any{t.Name, t.Description} },
	Dest:    func(t *ParamType) []any { return []any{&t.Name, &t.Description} },
	New:     func() *ParamType { return &ParamType{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name": {Column: "name", Kind: db.Contains},
	}),
	Sortable:     sortByCode,
	DefaultSort:  "code",
	Unique:       []crud.Unique{crud.CodeUnique()},
	ReferencedBy: []db.Ref{{Table: "param", Column: "param_type_id"}},
}

var ParamTable = &crud.Table[*Param]{
	Entity:  "param",
	Name:    "param",
	Columns: []string{"param_type_id", "label", "value", "sort_order"},
	Values:  func(p *Param) []any { return []any{p.ParamTypeID, p.Label, p.Value, p.SortOrder} },
	Dest:    func(p *Param) []any { return []any{&p.ParamTypeID, &p.Label, &p.Value, &p.SortOrder} },
	New:     func() *Param { return &Param{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"param_type_id": {Column: "param_type_id", Kind: db.UUID},
		"label":         {Column: "label", Kind: db.Contains},
	}),
	Extra: func(f map[string]string) (sq.Sqlizer, error) {
		code := f["param_type_code"]
		if code == "" {
			return nil, nil
		}
		return sq.Expr("param_type_id IN (SELECT id FROM param_type WHERE code = ? AND NOT deleted)",
			record.NormalizeCode(code)), nil
	},
	Sortable: map[string]string{
		"code":       "code",
		"label":      "label",
		"sort_order": "sort_order",
		"created_at": "created_at",
	},
	DefaultSort: "sort_order",
	Unique:      []crud.Unique{crud.CodeUnique("param_type_id")},
	ReferencedBy: []db.Ref{
		{Table: "tier", Column: "channel_id"},
		{Table: "tier", Column: "service_id"},
		{Table: "tax_rule", Column: "service_id"},
	},
}

var IdentityDocumentTable = &crud.Table[*IdentityDocument]{
	Entity:  "identity document",
	Name:    "identity_document",
	Columns: []string{"name", "country_id", "pattern", "min_length", "max_length", "has_expiry"},
	Values: func(d *IdentityDocument) []any {
		return []any{d.Name, d.CountryID, d.Pattern, d.MinLength, d.MaxLength, d.HasExpiry}
	},
	Dest: func(d *IdentityDocument) []any {
		return []any{&d.Name, &d.CountryID, &d.Pattern, &d.MinLength, &d.MaxLength, &d.HasExpiry}
	},
	New: func() *IdentityDocument { return &IdentityDocument{Meta: record.New()} },
	Filters: crud.Filters(db.Fields{
		"name":       {Column: "name", Kind: db.Contains},
		"country_id": {Column: "country_id", Kind: db.UUID},
	}),
	Sortable:    sortByCode,
	DefaultSort: "code",
	Unique:      []crud.Unique{crud.CodeUnique("country_id")},
}

// ParamRepository adds parameter type membership queries to the
// generic repository.
type ParamRepository interface {
	crud.Repository[*Param]
	// OfType reports whether id is a live param of the type typeCode.
	OfType(ctx context.Context, id uuid.UUID, typeCode string) (bool, error)
	// CodeOfType reports whether a live param of type typeCode carries code.
	CodeOfType(ctx context.Context, typeCode, code string) (bool, error)
	// PartnerTypeUsed reports whether a live partner carries the partner
	// type code.
	PartnerTypeUsed(ctx context.Context, code string) (bool, error)
}

type paramRepoPG struct {
	crud.Repository[*Param]
	pool *pgxpool.Pool
}

func NewParamRepo(pool *pgxpool.Pool) ParamRepository {
	return &paramRepoPG{Repository: crud.NewPGRepository(pool, ParamTable), pool: pool}
}

func (r *paramRepoPG) typeIs(typeCode string) sq.Sqlizer {
	return sq.Expr("param_type_id IN (SELECT id FROM param_type WHERE code = ? AND NOT deleted)", typeCode)
}

func (r *paramRepoPG) OfType(ctx context.Context, id uuid.UUID, typeCode string) (bool, error) {
	ok, err := db.Exists(ctx, db.Conn(ctx, r.pool), "param", sq.And{db.Live, sq.Eq{"id": id}, r.typeIs(typeCode)})
	if err != nil {
		return false, fmt.Errorf("check param %s of type %s: %w", id, typeCode, err)
	}
	return ok, nil
}

func (r *paramRepoPG) CodeOfType(ctx context.Context, typeCode, code string) (bool, error) {
	ok, err := db.Exists(ctx, db.Conn(ctx, r.pool), "param", sq.And{db.Live, sq.Eq{"code": code}, r.typeIs(typeCode)})
	if err != nil {
		return false, fmt.Errorf("check param %s of type %s: %w", code, typeCode, err)
	}
	return ok, nil
}

func (r *paramRepoPG) PartnerTypeUsed(ctx context.Context, code string) (bool, error) {
	ok, err := db.Exists(ctx, db.Conn(ctx, r.pool), "partner", sq.And{db.Live, sq.Eq{"partner_type": code}})
	if err != nil {
		return false, fmt.Errorf("check partners of type %s: %w", code, err)
	}
	return ok, nil
}

// Repos bundles the repositories of the package.
type Repos struct {
	Currencies        crud.Repository[*Currency]
	ParamTypes        crud.Repository[*ParamType]
	Params            ParamRepository
	IdentityDocuments crud.Repository[*IdentityDocument]
}

func NewRepos(pool *pgxpool.Pool) Repos {
	return Repos{
		Currencies:        crud.NewPGRepository(pool, CurrencyTable),
		ParamTypes:        crud.NewPGRepository(pool, ParamTypeTable),
		Params:            NewParamRepo(pool),
		IdentityDocuments: crud.NewPGRepository(pool, IdentityDocumentTable),
	}
}
