// Package crud implements the create/read/update/patch/soft-delete/search
// cycle shared by every referential table.
package crud

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/record"
)

// Unique is a set of columns whose values may appear on at most one live
// row. Keys with an empty or null member are not enforced.
type Unique struct {
	Name    string
	Columns []string
}

// Table describes how an entity maps onto its table.
type Table[T record.Entity] struct {
	Entity string // singular name used in messages and events
	Name   string // SQL table

	// Columns lists the entity specific columns, after the Meta ones.
	Columns []string
	// Values returns the column values of e in Columns order.
	Values func(e T) []any
	// Dest returns scan destinations in Columns order.
	Dest func(e T) []any
	New  func() T

	Filters db.Fields
	// Extra translates filters that are not plain column predicates.
	Extra       func(filters map[string]string) (sq.Sqlizer, error)
	Sortable    map[string]string
	DefaultSort string
	Unique      []Unique
	// ReferencedBy lists the columns of other tables that point at this one.
	ReferencedBy []db.Ref
}

// Filters returns extra plus the code and enabled filters every table has.
func Filters(extra db.Fields) db.Fields {
	f := db.Fields{
		"code":    {Column: "code", Kind: db.Code},
		"enabled": {Column: "enabled", Kind: db.Bool},
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

// CodeUnique is the usual uniqueness rule: code among all live rows,
// optionally scoped by further columns.
func CodeUnique(scope ...string) Unique {
	name := "code"
	if len(scope) > 0 {
		name = "code within " + strings.Join(scope, ", ")
	}
	return Unique{Name: name, Columns: append([]string{"code"}, scope...)}
}

// columnValues maps every writable column of e to its value.
func (t *Table[T]) columnValues(e T) map[string]any {
	m := e.Base()
	out := map[string]any{"code": m.Code, "enabled": m.Enabled}
	for i, v := range t.Values(e) {
		out[t.Columns[i]] = v
	}
	return out
}

func (t *Table[T]) selectColumns() string {
	if len(t.Columns) == 0 {
		return record.Columns
	}
	return record.Columns + ", " + strings.Join(t.Columns, ", ")
}

func (t *Table[T]) scanDest(e T) []any {
	return append(e.Base().ScanDest(), t.Dest(e)...)
}

// isNull reports whether v should be treated as SQL NULL for uniqueness.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case *string:
		return x == nil || *x == ""
	case *uuid.UUID:
		return x == nil
	case uuid.UUID:
		return x == uuid.Nil
	}
	return false
}

// Lookup answers existence questions about live rows of another table.
type Lookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
