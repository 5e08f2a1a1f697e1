package crud

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/pkg/pagination"
)

func newTestServer(t *testing.T, roles ...string) (*echo.Echo, *Service[*gadget]) {
	t.Helper()
	svc, _, _ := newGadgetService(t, nil)
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "tester", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(api, "/gadgets")
	return e, svc
}

func do(e *echo.Echo, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateAndGet(t *testing.T) {
	e, _ := newTestServer(t, auth.RoleEditor)

	rec := do(e, http.MethodPost, "/api/v1/gadgets", echo.MIMEApplicationJSON, `{"code":"h1","name":"Handled"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created gadget
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Code != "H1" || !created.Enabled || created.VersionID != 1 {
		t.Errorf("unexpected body: %+v", created)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/api/v1/gadgets/"+created.ID.String() {
		t.Errorf("unexpected location %q", loc)
	}

	rec = do(e, http.MethodGet, "/api/v1/gadgets/"+created.ID.String(), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/v1/gadgets/by-code/h1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 by code, got %d", rec.Code)
	}
}

func TestHandler_StatusMapping(t *testing.T) {
	e, _ := newTestServer(t, auth.RoleEditor)
	if rec := do(e, http.MethodPost, "/api/v1/gadgets", echo.MIMEApplicationJSON, `{"code":"D","name":"d"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed failed: %d", rec.Code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate", http.MethodPost, "/api/v1/gadgets", `{"code":"d","name":"again"}`, http.StatusConflict},
		{"invalid payload", http.MethodPost, "/api/v1/gadgets", `{"code":"x"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/gadgets", `{"code":`, http.StatusBadRequest},
		{"missing reference", http.MethodPost, "/api/v1/gadgets", `{"code":"R","name":"r","owner_id":"6f1c2b9e-8d3a-4c55-9e7b-2a4d1f0c9b11"}`, http.StatusUnprocessableEntity},
		{"bad id", http.MethodGet, "/api/v1/gadgets/not-a-uuid", "", http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/v1/gadgets/6f1c2b9e-8d3a-4c55-9e7b-2a4d1f0c9b11", "", http.StatusNotFound},
		{"unknown code", http.MethodGet, "/api/v1/gadgets/by-code/NOPE", "", http.StatusNotFound},
		{"bad filter", http.MethodGet, "/api/v1/gadgets?enabled=maybe", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := ""
			if tt.body != "" {
				ct = echo.MIMEApplicationJSON
			}
			rec := do(e, tt.method, tt.path, ct, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_UpdatePatchDelete(t *testing.T) {
	e, svc := newTestServer(t, auth.RoleEditor)
	g := mustCreate(t, svc, "LIFE", "life")
	path := "/api/v1/gadgets/" + g.ID.String()

	rec := do(e, http.MethodPut, path, echo.MIMEApplicationJSON, `{"code":"LIFE","name":"put","version_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPut, path, echo.MIMEApplicationJSON, `{"code":"LIFE","name":"stale","version_id":1}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale put: expected 409, got %d", rec.Code)
	}

	rec = do(e, http.MethodPatch, path, "application/merge-patch+json", `{"name":"patched"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var patched gadget
	_ = json.Unmarshal(rec.Body.Bytes(), &patched)
	if patched.Name != "patched" || patched.VersionID != 3 {
		t.Errorf("unexpected patched body: %+v", patched)
	}

	rec = do(e, http.MethodDelete, path+"?version_id=2", "", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale delete: expected 409, got %d", rec.Code)
	}
	rec = do(e, http.MethodDelete, path, "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, path, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestHandler_List(t *testing.T) {
	e, svc := newTestServer(t, auth.RoleReader)
	for _, code := range []string{"L1", "L2", "L3"} {
		mustCreate(t, svc, code, "item "+code)
	}

	rec := do(e, http.MethodGet, "/api/v1/gadgets?page=2&page_size=2", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		pagination.Response
		Data []gadget `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Data) != 1 || resp.Data[0].Code != "L3" || resp.HasMore {
		t.Errorf("unexpected page: %+v", resp)
	}
}

func TestHandler_ListFiltersIgnorePaging(t *testing.T) {
	e, svc := newTestServer(t, auth.RoleReader)
	mustCreate(t, svc, "F1", "blue widget")
	mustCreate(t, svc, "F2", "red widget")

	rec := do(e, http.MethodGet, "/api/v1/gadgets?name=blue&limit=10&offset=0&sort=code&order=desc&version_id=3", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		pagination.Response
		Data []gadget `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].Code != "F1" {
		t.Errorf("expected only F1, got %+v", resp)
	}

	rec = do(e, http.MethodGet, "/api/v1/gadgets/by-code/f2?page=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("by-code with paging params: expected 200, got %d", rec.Code)
	}
}

func TestHandler_RoleEnforcement(t *testing.T) {
	e, _ := newTestServer(t, auth.RoleReader)
	rec := do(e, http.MethodPost, "/api/v1/gadgets", echo.MIMEApplicationJSON, `{"code":"NO","name":"no"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for reader write, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/v1/gadgets", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reader to list, got %d", rec.Code)
	}
}
