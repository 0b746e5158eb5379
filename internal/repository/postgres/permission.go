package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type permissionRepository struct {
	BaseRepository
}

func NewPermissionRepository(base BaseRepository) repository.PermissionRepository {
	return &permissionRepository{base}
}

// HasPermission checks for a grant of action (or "*") to userID, either
// global (resource_id NULL) or scoped to resourceID.
func (r *permissionRepository) HasPermission(ctx context.Context, userID uuid.UUID, action string, resourceID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM permission_grants
			WHERE user_id = $1
			AND action IN ($2, '*')
			AND (resource_id IS NULL OR resource_id = $3)
		)
	`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, userID, action, resourceID); err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return ok, nil
}
