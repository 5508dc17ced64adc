package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"participium/pkg/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateUser  = errors.New("username or email already registered")
	ErrOfficeNotFound = errors.New("office not found")
	ErrRoleNotFound   = errors.New("role not found")
)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *UserStore) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *UserStore) UserByID(ctx context.Context, id int64) (models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) first(ctx context.Context, query string, arg any) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// AssignOffice grants roleID inside officeID. Granting a pair the user
// already holds is a no-op.
func (s *UserStore) AssignOffice(ctx context.Context, userID, officeID, roleID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.User{}, userID, ErrUserNotFound); err != nil {
			return err
		}
		if err := exists(tx, &models.Office{}, officeID, ErrOfficeNotFound); err != nil {
			return err
		}
		if err := exists(tx, &models.Role{}, roleID, ErrRoleNotFound); err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.UserOffice{UserID: userID, OfficeID: officeID, RoleID: roleID}).Error
		if err != nil {
			return fmt.Errorf("assign office: %w", err)
		}
		return nil
	})
}

func (s *UserStore) Offices(ctx context.Context) ([]models.Office, error) {
	var offices []models.Office
	if err := s.db.WithContext(ctx).Order("name").Find(&offices).Error; err != nil {
		return nil, fmt.Errorf("list offices: %w", err)
	}
	return offices, nil
}

func (s *UserStore) Roles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func exists(tx *gorm.DB, model any, id int64, notFound error) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if count == 0 {
		return notFound
	}
	return nil
}
