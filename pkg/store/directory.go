package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"participium/pkg/authz"
)

// Directory resolves office roles with a join on every call.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) RolesFor(ctx context.Context, userID int64) ([]authz.OfficeRole, error) {
	var rows []authz.OfficeRole
	err := d.db.WithContext(ctx).
		Table("user_offices").
		Select(`offices.id AS office_id, offices.name AS office_name, offices.is_external AS office_external,
			roles.id AS role_id, roles.name AS role_name`).
		Joins("JOIN offices ON offices.id = user_offices.office_id").
		Joins("JOIN roles ON roles.id = user_offices.role_id").
		Where("user_offices.user_id = ?", userID).
		Order("offices.id, roles.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("resolve office roles of user %d: %w", userID, err)
	}
	return rows, nil
}
