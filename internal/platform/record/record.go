// Package record holds the bookkeeping fields shared by every referential
// entity: identity, business code, enablement, optimistic version and audit
// stamps.
package record

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Meta is embedded in every entity. Soft-delete markers live only in the
// database and are never exposed.
type Meta struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code" validate:"required,max=50,refcode"`
	Enabled   bool      `json:"enabled"`
	VersionID int       `json:"version_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Entity is implemented by every struct embedding Meta.
type Entity interface {
	Base() *Meta
}

// New returns the Meta a freshly decoded create payload starts from, so
// that an omitted "enabled" means enabled.
func New() Meta {
	return Meta{Enabled: true}
}

func (m *Meta) Base() *Meta { return m }

// Columns lists the Meta columns in the order ScanDest expects.
const Columns = "id, code, enabled, version_id, created_at, updated_at, created_by, updated_by"

func (m *Meta) ScanDest() []any {
	return []any{&m.ID, &m.Code, &m.Enabled, &m.VersionID, &m.CreatedAt, &m.UpdatedAt, &m.CreatedBy, &m.UpdatedBy}
}

// NormalizeCode trims and upper-cases a business code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PrepareCreate resets server-owned fields before an insert.
func (m *Meta) PrepareCreate(actor string) {
	m.ID = uuid.Nil
	m.Code = NormalizeCode(m.Code)
	m.VersionID = 1
	m.CreatedBy = actor
	m.UpdatedBy = actor
}

// PrepareUpdate carries the immutable fields of current over to m.
func (m *Meta) PrepareUpdate(current *Meta, actor string) {
	m.ID = current.ID
	m.Code = NormalizeCode(m.Code)
	m.CreatedAt = current.CreatedAt
	m.CreatedBy = current.CreatedBy
	m.UpdatedBy = actor
	if m.VersionID == 0 {
		m.VersionID = current.VersionID
	}
}
