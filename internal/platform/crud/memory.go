package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/record"
	"github.com/refdata/refdata/pkg/pagination"
)

// MemoryRepository keeps rows in a map. It honours the same filters,
// unique keys and soft-delete rules as the Postgres repository and backs
// service tests and local tooling.
type MemoryRepository[T record.Entity] struct {
	t       *Table[T]
	mu      sync.Mutex
	rows    map[uuid.UUID]T
	deleted map[uuid.UUID]bool
	now     func() time.Time

	// IsReferenced answers Referenced. Nil means never referenced.
	IsReferenced func(id uuid.UUID) bool
}

func NewMemoryRepository[T record.Entity](t *Table[T]) *MemoryRepository[T] {
	return &MemoryRepository[T]{
		t:       t,
		rows:    make(map[uuid.UUID]T),
		deleted: make(map[uuid.UUID]bool),
		now:     time.Now,
	}
}

func (r *MemoryRepository[T]) clone(e T) T {
	raw, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("clone %s: %v", r.t.Entity, err))
	}
	out := r.t.New()
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("clone %s: %v", r.t.Entity, err))
	}
	return out
}

func (r *MemoryRepository[T]) Create(_ context.Context, e T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := e.Base()
	m.ID = uuid.New()
	m.CreatedAt = r.now().UTC()
	m.UpdatedAt = m.CreatedAt
	if name := r.taken(e); name != "" {
		return fmt.Errorf("%s: %w", name, apierr.ErrDuplicate)
	}
	r.rows[m.ID] = r.clone(e)
	return nil
}

func (r *MemoryRepository[T]) GetByID(_ context.Context, id uuid.UUID) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	e, ok := r.rows[id]
	if !ok || r.deleted[id] {
		return zero, apierr.NotFound(r.t.Entity, id)
	}
	return r.clone(e), nil
}

func (r *MemoryRepository[T]) Update(_ context.Context, e T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := e.Base()
	cur, ok := r.rows[m.ID]
	if !ok || r.deleted[m.ID] || cur.Base().VersionID != m.VersionID {
		return fmt.Errorf("%s %s: %w", r.t.Entity, m.ID, apierr.ErrConflict)
	}
	if name := r.taken(e); name != "" {
		return fmt.Errorf("%s: %w", name, apierr.ErrDuplicate)
	}
	m.VersionID++
	m.UpdatedAt = r.now().UTC()
	r.rows[m.ID] = r.clone(e)
	return nil
}

func (r *MemoryRepository[T]) Delete(_ context.Context, id uuid.UUID, version int, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[id]
	if !ok || r.deleted[id] || cur.Base().VersionID != version {
		return fmt.Errorf("%s %s: %w", r.t.Entity, id, apierr.ErrConflict)
	}
	m := cur.Base()
	m.Enabled = false
	m.VersionID++
	m.UpdatedBy = actor
	m.UpdatedAt = r.now().UTC()
	r.deleted[id] = true
	return nil
}

// Deleted reports whether id was soft-deleted.
func (r *MemoryRepository[T]) Deleted(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted[id]
}

func (r *MemoryRepository[T]) Search(_ context.Context, filters map[string]string, p pagination.Params) ([]T, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []T
	for id, e := range r.rows {
		if r.deleted[id] {
			continue
		}
		ok, err := r.matches(e, filters)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, r.clone(e))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].Base(), matched[j].Base()
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.ID.String() < b.ID.String()
	})
	if p.Desc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	total := len(matched)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := total
	if p.Limit > 0 && p.Offset+p.Limit < total {
		end = p.Offset + p.Limit
	}
	return matched[p.Offset:end], total, nil
}

func (r *MemoryRepository[T]) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok && !r.deleted[id], nil
}

func (r *MemoryRepository[T]) Taken(_ context.Context, e T) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taken(e), nil
}

func (r *MemoryRepository[T]) Referenced(_ context.Context, id uuid.UUID) (bool, error) {
	if r.IsReferenced == nil {
		return false, nil
	}
	return r.IsReferenced(id), nil
}

func (r *MemoryRepository[T]) taken(e T) string {
	values := r.t.columnValues(e)
	self := e.Base().ID
	for _, u := range r.t.Unique {
		if anyNull(values, u.Columns) {
			continue
		}
		for id, row := range r.rows {
			if id == self || r.deleted[id] {
				continue
			}
			other := r.t.columnValues(row)
			same := true
			for _, col := range u.Columns {
				if fmt.Sprint(deref(values[col])) != fmt.Sprint(deref(other[col])) {
					same = false
					break
				}
			}
			if same {
				return u.Name
			}
		}
	}
	return ""
}

func anyNull(values map[string]any, cols []string) bool {
	for _, col := range cols {
		if isNull(values[col]) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository[T]) matches(e T, filters map[string]string) (bool, error) {
	values := r.t.columnValues(e)
	for name, raw := range filters {
		f, ok := r.t.Filters[name]
		if !ok || raw == "" {
			continue
		}
		v := deref(values[f.Column])
		got := ""
		if v != nil {
			got = fmt.Sprint(v)
		}
		switch f.Kind {
		case db.Exact:
			if got != raw {
				return false, nil
			}
		case db.Code:
			if !strings.EqualFold(got, strings.TrimSpace(raw)) {
				return false, nil
			}
		case db.Contains:
			if !strings.Contains(strings.ToLower(got), strings.ToLower(raw)) {
				return false, nil
			}
		case db.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return false, apierr.Invalid("%s must be a boolean", name)
			}
			if got != strconv.FormatBool(b) {
				return false, nil
			}
		case db.UUID:
			id, err := uuid.Parse(raw)
			if err != nil {
				return false, apierr.Invalid("%s must be a uuid", name)
			}
			if got != id.String() {
				return false, nil
			}
		case db.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return false, apierr.Invalid("%s must be an integer", name)
			}
			if got != strconv.Itoa(n) {
				return false, nil
			}
		}
	}
	return true, nil
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}
