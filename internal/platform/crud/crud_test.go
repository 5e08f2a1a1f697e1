package crud

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/cache"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/platform/events"
	"github.com/refdata/refdata/internal/platform/record"
	"github.com/refdata/refdata/pkg/pagination"
)

type gadget struct {
	record.Meta
	Name    string     `json:"name" validate:"required,max=100"`
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`
	Serial  string     `json:"serial,omitempty"`
	Size    int        `json:"size" validate:"gte=0"`
}

var gadgetTable = &Table[*gadget]{
	Entity:  "gadget",
	Name:    "gadget",
	Columns: []string{"name", "owner_id", "serial", "size"},
	Values: func(g *gadget) []any {
		return []any{g.Name, g.OwnerID, g.Serial, g.Size}
	},
	Dest: func(g *gadget) []any {
		return []any{&g.Name, &g.OwnerID, &g.Serial, &g.Size}
	},
	New: func() *gadget { return &gadget{Meta: record.New()} },
	Filters: Filters(db.Fields{
		"name":     {Column: "name", Kind: db.Contains},
		"owner_id": {Column: "owner_id", Kind: db.UUID},
		"size":     {Column: "size", Kind: db.Int},
	}),
	DefaultSort: "code",
	Unique: []Unique{
		CodeUnique(),
		{Name: "serial", Columns: []string{"serial"}},
	},
}

type recordingNotifier struct {
	changes []events.Change
}

func (n *recordingNotifier) Notify(_ context.Context, c events.Change) {
	n.changes = append(n.changes, c)
}

type ownerSet map[uuid.UUID]bool

func (o ownerSet) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return o[id], nil
}

func newGadgetService(t *testing.T, owners ownerSet) (*Service[*gadget], *MemoryRepository[*gadget], *recordingNotifier) {
	t.Helper()
	repo := NewMemoryRepository(gadgetTable)
	n := &recordingNotifier{}
	rules := Rules[*gadget]{
		Validate: func(g *gadget) error {
			if g.Size > 10 && g.Serial == "" {
				return apierr.Invalid("large gadgets need a serial")
			}
			return nil
		},
		References: func(ctx context.Context, g *gadget) error {
			return RequireRef(ctx, "owner_id", g.OwnerID, owners)
		},
	}
	return NewService(gadgetTable, repo, rules, WithNotifier(n)), repo, n
}

func testCtx() context.Context {
	return auth.WithIdentity(context.Background(), "tester", []string{auth.RoleEditor})
}

func mustCreate(t *testing.T, svc *Service[*gadget], code, name string) *gadget {
	t.Helper()
	g := gadgetTable.New()
	g.Code = code
	g.Name = name
	if err := svc.Create(testCtx(), g); err != nil {
		t.Fatalf("create %s: %v", code, err)
	}
	return g
}

func TestService_Create(t *testing.T) {
	svc, _, n := newGadgetService(t, nil)
	g := mustCreate(t, svc, "  wid-1 ", "Widget")

	if g.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if g.Code != "WID-1" {
		t.Errorf("expected normalised code WID-1, got %q", g.Code)
	}
	if g.VersionID != 1 || !g.Enabled {
		t.Errorf("unexpected meta: version=%d enabled=%v", g.VersionID, g.Enabled)
	}
	if g.CreatedBy != "tester" {
		t.Errorf("expected created_by tester, got %q", g.CreatedBy)
	}
	if len(n.changes) != 1 || n.changes[0].Action != events.Created || n.changes[0].EntityID != g.ID {
		t.Errorf("unexpected changes: %+v", n.changes)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)

	tests := []struct {
		name string
		g    *gadget
	}{
		{"missing code", &gadget{Meta: record.New(), Name: "x"}},
		{"missing name", &gadget{Meta: record.Meta{Code: "A"}}},
		{"bad code", &gadget{Meta: record.Meta{Code: "A B"}, Name: "x"}},
		{"negative size", &gadget{Meta: record.Meta{Code: "A"}, Name: "x", Size: -1}},
		{"rule violation", &gadget{Meta: record.Meta{Code: "A"}, Name: "x", Size: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Create(testCtx(), tt.g)
			if !errors.Is(err, apierr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_CreateDuplicateCode(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	mustCreate(t, svc, "DUP", "First")

	g := gadgetTable.New()
	g.Code = "dup"
	g.Name = "Second"
	if err := svc.Create(testCtx(), g); !errors.Is(err, apierr.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestService_DuplicateOptionalKey(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)

	a := gadgetTable.New()
	a.Code, a.Name, a.Serial = "A", "A", "SN-1"
	if err := svc.Create(testCtx(), a); err != nil {
		t.Fatal(err)
	}
	// empty serials never collide
	mustCreate(t, svc, "B", "B")
	mustCreate(t, svc, "C", "C")

	d := gadgetTable.New()
	d.Code, d.Name, d.Serial = "D", "D", "SN-1"
	if err := svc.Create(testCtx(), d); !errors.Is(err, apierr.ErrDuplicate) {
		t.Fatalf("expected duplicate serial, got %v", err)
	}
}

func TestService_CreateMissingReference(t *testing.T) {
	owner := uuid.New()
	svc, _, _ := newGadgetService(t, ownerSet{owner: true})

	g := gadgetTable.New()
	g.Code, g.Name = "REF", "Ref"
	missing := uuid.New()
	g.OwnerID = &missing
	if err := svc.Create(testCtx(), g); !errors.Is(err, apierr.ErrReference) {
		t.Fatalf("expected reference error, got %v", err)
	}

	g.OwnerID = &owner
	if err := svc.Create(testCtx(), g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_Update(t *testing.T) {
	svc, _, n := newGadgetService(t, nil)
	g := mustCreate(t, svc, "UPD", "Before")

	next := gadgetTable.New()
	next.Code = "UPD"
	next.Name = "After"
	next.VersionID = 1
	ctx := auth.WithIdentity(context.Background(), "editor-2", nil)
	if err := svc.Update(ctx, g.ID, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if next.VersionID != 2 {
		t.Errorf("expected version 2, got %d", next.VersionID)
	}
	if next.CreatedBy != "tester" || next.UpdatedBy != "editor-2" {
		t.Errorf("unexpected actors: %q / %q", next.CreatedBy, next.UpdatedBy)
	}

	got, err := svc.Get(testCtx(), g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "After" {
		t.Errorf("expected stored name After, got %q", got.Name)
	}
	if last := n.changes[len(n.changes)-1]; last.Action != events.Updated || last.VersionID != 2 {
		t.Errorf("unexpected change: %+v", last)
	}
}

func TestService_UpdateVersionConflict(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	g := mustCreate(t, svc, "VER", "v")

	stale := gadgetTable.New()
	stale.Code, stale.Name, stale.VersionID = "VER", "stale", 7
	if err := svc.Update(testCtx(), g.ID, stale); !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// version omitted means current
	fresh := gadgetTable.New()
	fresh.Code, fresh.Name = "VER", "fresh"
	if err := svc.Update(testCtx(), g.ID, fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_UpdateDuplicateAgainstOthers(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	mustCreate(t, svc, "ONE", "one")
	two := mustCreate(t, svc, "TWO", "two")

	// keeping its own code is fine
	same := gadgetTable.New()
	same.Code, same.Name = "TWO", "renamed"
	if err := svc.Update(testCtx(), two.ID, same); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clash := gadgetTable.New()
	clash.Code, clash.Name = "ONE", "clash"
	if err := svc.Update(testCtx(), two.ID, clash); !errors.Is(err, apierr.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestService_UpdateMissing(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	g := gadgetTable.New()
	g.Code, g.Name = "X", "x"
	if err := svc.Update(testCtx(), uuid.New(), g); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_Patch(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	g := mustCreate(t, svc, "PAT", "Original")

	got, err := svc.Patch(testCtx(), g.ID, "application/merge-patch+json", []byte(`{"name":"Merged","id":"`+uuid.NewString()+`"}`))
	if err != nil {
		t.Fatalf("merge patch: %v", err)
	}
	if got.Name != "Merged" || got.ID != g.ID || got.VersionID != 2 {
		t.Errorf("unexpected patched gadget: %+v", got)
	}

	got, err = svc.Patch(testCtx(), g.ID, "application/json-patch+json",
		[]byte(`[{"op":"test","path":"/name","value":"Merged"},{"op":"replace","path":"/size","value":3}]`))
	if err != nil {
		t.Fatalf("json patch: %v", err)
	}
	if got.Size != 3 || got.VersionID != 3 {
		t.Errorf("unexpected patched gadget: %+v", got)
	}

	_, err = svc.Patch(testCtx(), g.ID, "application/merge-patch+json", []byte(`{"version_id":1}`))
	if !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	_, err = svc.Patch(testCtx(), g.ID, "application/merge-patch+json", []byte(`{"name":null}`))
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo, n := newGadgetService(t, nil)
	g := mustCreate(t, svc, "DEL", "d")

	if err := svc.Delete(testCtx(), g.ID, 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !repo.Deleted(g.ID) {
		t.Error("expected row to be soft-deleted")
	}
	if _, err := svc.Get(testCtx(), g.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected deleted row to be invisible, got %v", err)
	}
	if err := svc.Delete(testCtx(), g.ID, 0); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected second delete to 404, got %v", err)
	}
	last := n.changes[len(n.changes)-1]
	if last.Action != events.Deleted || last.VersionID != 2 {
		t.Errorf("unexpected change: %+v", last)
	}

	// the code is free again once the row is deleted
	mustCreate(t, svc, "DEL", "again")
}

func TestService_DeleteInUse(t *testing.T) {
	svc, repo, _ := newGadgetService(t, nil)
	g := mustCreate(t, svc, "USED", "u")
	repo.IsReferenced = func(id uuid.UUID) bool { return id == g.ID }

	if err := svc.Delete(testCtx(), g.ID, 0); !errors.Is(err, apierr.ErrInUse) {
		t.Fatalf("expected in use, got %v", err)
	}
	if repo.Deleted(g.ID) {
		t.Error("referenced row must not be deleted")
	}
}

func TestService_ChangingAndDeletingHooks(t *testing.T) {
	repo := NewMemoryRepository(gadgetTable)
	var seen string
	svc := NewService(gadgetTable, repo, Rules[*gadget]{
		Changing: func(_ context.Context, cur, next *gadget) error {
			seen = cur.Name + "->" + next.Name
			if next.Size < cur.Size {
				return apierr.Invalid("gadgets only grow")
			}
			return nil
		},
		Deleting: func(_ context.Context, cur *gadget) error {
			if cur.Size > 0 {
				return fmt.Errorf("gadget %s: %w", cur.Code, apierr.ErrInUse)
			}
			return nil
		},
	})
	g := mustCreate(t, svc, "HOOK", "old")

	next := gadgetTable.New()
	next.Code, next.Name, next.Size = "HOOK", "new", 2
	if err := svc.Update(testCtx(), g.ID, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if seen != "old->new" {
		t.Errorf("expected the stored and the next row, got %q", seen)
	}
	if _, err := svc.Patch(testCtx(), g.ID, "application/merge-patch+json", []byte(`{"size":1}`)); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error from patch, got %v", err)
	}
	if err := svc.Delete(testCtx(), g.ID, 0); !errors.Is(err, apierr.ErrInUse) {
		t.Fatalf("expected in use, got %v", err)
	}
	if repo.Deleted(g.ID) {
		t.Error("vetoed row must not be deleted")
	}
}

func TestService_DeleteVersionConflict(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	g := mustCreate(t, svc, "DV", "d")
	if err := svc.Delete(testCtx(), g.ID, 5); !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_GetByCode(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	g := mustCreate(t, svc, "BYCODE", "c")

	got, err := svc.GetByCode(testCtx(), "bycode", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != g.ID {
		t.Errorf("expected %s, got %s", g.ID, got.ID)
	}
	if _, err := svc.GetByCode(testCtx(), "missing", nil); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Search(t *testing.T) {
	svc, _, _ := newGadgetService(t, nil)
	mustCreate(t, svc, "S1", "Blue box")
	mustCreate(t, svc, "S2", "Red box")
	s3 := mustCreate(t, svc, "S3", "Blue ball")
	if err := svc.Delete(testCtx(), s3.ID, 0); err != nil {
		t.Fatal(err)
	}

	items, total, err := svc.Search(testCtx(), map[string]string{"name": "BLUE"}, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].Code != "S1" {
		t.Errorf("unexpected result: total=%d items=%v", total, items)
	}

	items, total, err = svc.Search(testCtx(), nil, pagination.Params{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 1 || items[0].Code != "S2" {
		t.Errorf("unexpected page: total=%d items=%v", total, items)
	}

	if _, _, err := svc.Search(testCtx(), map[string]string{"size": "big"}, pagination.Params{Limit: 10}); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_CacheSharedAcrossTenantCase(t *testing.T) {
	repo := NewMemoryRepository(gadgetTable)
	c := cache.NewMemory()
	svc := NewService(gadgetTable, repo, Rules[*gadget]{}, WithCache(c, 0))
	lower := db.WithTenant(testCtx(), "acme")
	upper := db.WithTenant(testCtx(), "ACME")

	g := gadgetTable.New()
	g.Code, g.Name = "SHARED", "cached"
	if err := svc.Create(lower, g); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(lower, g.ID); err != nil {
		t.Fatal(err)
	}

	upd := gadgetTable.New()
	upd.Code, upd.Name = "SHARED", "fresh"
	if err := svc.Update(upper, g.ID, upd); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(lower, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "fresh" {
		t.Errorf("write under ACME left a stale entry for acme: %q", got.Name)
	}
}

func TestService_GetUsesCache(t *testing.T) {
	repo := NewMemoryRepository(gadgetTable)
	c := cache.NewMemory()
	svc := NewService(gadgetTable, repo, Rules[*gadget]{}, WithCache(c, 0))
	g := mustCreate(t, svc, "CACHED", "cached")

	if _, err := svc.Get(testCtx(), g.ID); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", c.Len())
	}

	upd := gadgetTable.New()
	upd.Code, upd.Name = "CACHED", "fresh"
	if err := svc.Update(testCtx(), g.ID, upd); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(testCtx(), g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "fresh" {
		t.Errorf("expected cache to be invalidated, got %q", got.Name)
	}
}
