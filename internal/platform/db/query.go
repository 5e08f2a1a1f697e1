package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/pkg/pagination"
)

// Psql builds statements with PostgreSQL $n placeholders.
var Psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Live matches rows that were not soft-deleted.
var Live = sq.Eq{"deleted": false}

// FieldKind controls how a filter value is parsed and compared.
type FieldKind int

const (
	Exact FieldKind = iota
	Code
	Contains
	Bool
	UUID
	Int
)

// Field maps a query parameter onto a column.
type Field struct {
	Column string
	Kind   FieldKind
}

// Fields is the allow-list of filterable parameters for a table.
type Fields map[string]Field

// Where translates request filters into a conjunction of column predicates.
// Unknown parameters are ignored; malformed values yield a validation error.
func Where(params map[string]string, fields Fields) (sq.And, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	where := sq.And{Live}
	for _, name := range names {
		raw := params[name]
		f, ok := fields[name]
		if !ok || raw == "" {
			continue
		}
		switch f.Kind {
		case Exact:
			where = append(where, sq.Eq{f.Column: raw})
		case Code:
			where = append(where, sq.Eq{f.Column: strings.ToUpper(strings.TrimSpace(raw))})
		case Contains:
			where = append(where, sq.ILike{f.Column: "%" + escapeLike(raw) + "%"})
		case Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, apierr.Invalid("%s must be a boolean", name)
			}
			where = append(where, sq.Eq{f.Column: b})
		case UUID:
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, apierr.Invalid("%s must be a uuid", name)
			}
			where = append(where, sq.Eq{f.Column: id})
		case Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, apierr.Invalid("%s must be an integer", name)
			}
			where = append(where, sq.Eq{f.Column: n})
		}
	}
	return where, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// OrderBy resolves the requested sort against an allow-list of columns.
func OrderBy(p pagination.Params, sortable map[string]string, def string) string {
	col, ok := sortable[p.Sort]
	if !ok {
		col = def
	}
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id ASC", col, dir)
}

// Count returns the number of rows of table matching where.
func Count(ctx context.Context, q Querier, table string, where sq.Sqlizer) (int, error) {
	sqlStr, args, err := Psql.Select("COUNT(*)").From(table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SelectPage runs a paginated select; the caller scans and closes the rows.
func SelectPage(ctx context.Context, q Querier, table, cols string, where sq.Sqlizer, orderBy string, p pagination.Params) (pgx.Rows, error) {
	sqlStr, args, err := Psql.Select(cols).From(table).Where(where).
		OrderBy(orderBy).
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}
	return q.Query(ctx, sqlStr, args...)
}

// Exists reports whether table holds at least one row matching where.
func Exists(ctx context.Context, q Querier, table string, where sq.Sqlizer) (bool, error) {
	sqlStr, args, err := Psql.Select("1").From(table).Where(where).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	err = q.QueryRow(ctx, sqlStr, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ref names a column of another table that points at a row.
type Ref struct {
	Table  string
	Column string
}

// Referenced reports whether any live row in refs points at id.
func Referenced(ctx context.Context, q Querier, id uuid.UUID, refs ...Ref) (bool, error) {
	for _, ref := range refs {
		found, err := Exists(ctx, q, ref.Table, sq.And{Live, sq.Eq{ref.Column: id}})
		if err != nil {
			return false, fmt.Errorf("check %s.%s: %w", ref.Table, ref.Column, err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}
