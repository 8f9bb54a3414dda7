package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Service resolves effective permissions for users within a tenant.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the RBAC service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// EffectivePermissions returns the permission codes granted to the user
// through role assignments within the tenant.
func (s *Service) EffectivePermissions(ctx context.Context, tenantID, userID int64) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("rbac service not initialised")
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.code
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.tenant_id = $1 AND ur.user_id = $2`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		perms = append(perms, code)
	}
	return perms, rows.Err()
}
