package crud

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/record"
	"github.com/refdata/refdata/pkg/pagination"
)

// Repository defines the persistence interface of a referential table.
// Soft-deleted rows are invisible to every method.
type Repository[T record.Entity] interface {
	Create(ctx context.Context, e T) error
	GetByID(ctx context.Context, id uuid.UUID) (T, error)
	// Update stores e if its VersionID still matches and bumps it.
	Update(ctx context.Context, e T) error
	Delete(ctx context.Context, id uuid.UUID, version int, actor string) error
	Search(ctx context.Context, filters map[string]string, p pagination.Params) ([]T, int, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Taken returns the name of the first unique key e collides on.
	Taken(ctx context.Context, e T) (string, error)
	Referenced(ctx context.Context, id uuid.UUID) (bool, error)
}

type pgRepo[T record.Entity] struct {
	pool *pgxpool.Pool
	t    *Table[T]
}

func NewPGRepository[T record.Entity](pool *pgxpool.Pool, t *Table[T]) Repository[T] {
	return &pgRepo[T]{pool: pool, t: t}
}

func (r *pgRepo[T]) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *pgRepo[T]) Create(ctx context.Context, e T) error {
	m := e.Base()
	m.ID = uuid.New()

	values := sq.Eq{
		"id":         m.ID,
		"version_id": m.VersionID,
		"created_by": m.CreatedBy,
		"updated_by": m.UpdatedBy,
	}
	for col, v := range r.t.columnValues(e) {
		values[col] = v
	}
	sqlStr, args, err := db.Psql.Insert(r.t.Name).SetMap(values).
		Suffix("RETURNING created_at, updated_at").ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s: %w", r.t.Name, err)
	}
	if err := r.conn(ctx).QueryRow(ctx, sqlStr, args...).Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("insert %s: %w", r.t.Entity, db.Translate(err))
	}
	return nil
}

func (r *pgRepo[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	sqlStr, args, err := db.Psql.Select(r.t.selectColumns()).From(r.t.Name).
		Where(sq.And{db.Live, sq.Eq{"id": id}}).ToSql()
	if err != nil {
		return zero, fmt.Errorf("build select %s: %w", r.t.Name, err)
	}
	e := r.t.New()
	err = r.conn(ctx).QueryRow(ctx, sqlStr, args...).Scan(r.t.scanDest(e)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, apierr.NotFound(r.t.Entity, id)
	}
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", r.t.Entity, err)
	}
	return e, nil
}

func (r *pgRepo[T]) Update(ctx context.Context, e T) error {
	m := e.Base()
	set := sq.Eq{
		"version_id": sq.Expr("version_id + 1"),
		"updated_at": sq.Expr("now()"),
		"updated_by": m.UpdatedBy,
	}
	for col, v := range r.t.columnValues(e) {
		set[col] = v
	}
	sqlStr, args, err := db.Psql.Update(r.t.Name).SetMap(set).
		Where(sq.And{db.Live, sq.Eq{"id": m.ID, "version_id": m.VersionID}}).
		Suffix("RETURNING version_id, updated_at").ToSql()
	if err != nil {
		return fmt.Errorf("build update %s: %w", r.t.Name, err)
	}
	err = r.conn(ctx).QueryRow(ctx, sqlStr, args...).Scan(&m.VersionID, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", r.t.Entity, m.ID, apierr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", r.t.Entity, db.Translate(err))
	}
	return nil
}

func (r *pgRepo[T]) Delete(ctx context.Context, id uuid.UUID, version int, actor string) error {
	sqlStr, args, err := db.Psql.Update(r.t.Name).SetMap(sq.Eq{
		"deleted":    true,
		"deleted_at": sq.Expr("now()"),
		"enabled":    false,
		"version_id": sq.Expr("version_id + 1"),
		"updated_at": sq.Expr("now()"),
		"updated_by": actor,
	}).Where(sq.And{db.Live, sq.Eq{"id": id, "version_id": version}}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete %s: %w", r.t.Name, err)
	}
	tag, err := r.conn(ctx).Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.t.Entity, db.Translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", r.t.Entity, id, apierr.ErrConflict)
	}
	return nil
}

func (r *pgRepo[T]) Search(ctx context.Context, filters map[string]string, p pagination.Params) ([]T, int, error) {
	where, err := db.Where(filters, r.t.Filters)
	if err != nil {
		return nil, 0, err
	}
	if r.t.Extra != nil {
		extra, err := r.t.Extra(filters)
		if err != nil {
			return nil, 0, err
		}
		if extra != nil {
			where = append(where, extra)
		}
	}

	q := r.conn(ctx)
	total, err := db.Count(ctx, q, r.t.Name, where)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.t.Entity, err)
	}

	rows, err := db.SelectPage(ctx, q, r.t.Name, r.t.selectColumns(), where,
		db.OrderBy(p, r.t.Sortable, r.t.DefaultSort), p)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", r.t.Entity, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		e := r.t.New()
		if err := rows.Scan(r.t.scanDest(e)...); err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", r.t.Entity, err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *pgRepo[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return db.Exists(ctx, r.conn(ctx), r.t.Name, sq.And{db.Live, sq.Eq{"id": id}})
}

func (r *pgRepo[T]) Taken(ctx context.Context, e T) (string, error) {
	values := r.t.columnValues(e)
	for _, u := range r.t.Unique {
		where := sq.And{db.Live}
		if id := e.Base().ID; id != uuid.Nil {
			where = append(where, sq.NotEq{"id": id})
		}
		skip := false
		for _, col := range u.Columns {
			v := values[col]
			if isNull(v) {
				skip = true
				break
			}
			where = append(where, sq.Eq{col: v})
		}
		if skip {
			continue
		}
		found, err := db.Exists(ctx, r.conn(ctx), r.t.Name, where)
		if err != nil {
			return "", fmt.Errorf("check %s %s: %w", r.t.Entity, u.Name, err)
		}
		if found {
			return u.Name, nil
		}
	}
	return "", nil
}

func (r *pgRepo[T]) Referenced(ctx context.Context, id uuid.UUID) (bool, error) {
	return db.Referenced(ctx, r.conn(ctx), id, r.t.ReferencedBy...)
}
