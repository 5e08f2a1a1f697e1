package middleware

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdata/refdata/internal/platform/db"
)

// PGAuditRecorder stores audit entries in the audit_log table of the
// request's tenant schema.
type PGAuditRecorder struct {
	pool *pgxpool.Pool
}

func NewPGAuditRecorder(pool *pgxpool.Pool) *PGAuditRecorder {
	return &PGAuditRecorder{pool: pool}
}

func (r *PGAuditRecorder) RecordAccess(ctx context.Context, e AuditEntry) error {
	roles := e.UserRoles
	if roles == nil {
		roles = []string{}
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_log (
			user_id, user_roles, resource, resource_id, action,
			method, path, ip_address, status_code, request_id, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.UserID, roles, e.Resource, e.ResourceID, e.Action,
		e.Method, e.Path, e.IPAddress, e.StatusCode, e.RequestID, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
