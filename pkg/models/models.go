package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Surname   string         `gorm:"not null" json:"surname"`
	Role      string         `gorm:"type:varchar(16);not null;default:'CITIZEN'" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Office struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"uniqueIndex;not null" json:"name"`
	IsExternal bool   `gorm:"not null;default:false" json:"is_external"`
}

type Role struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// UserOffice is the only source of fine-grained permissions: a user holds
// role RoleID inside office OfficeID.
type UserOffice struct {
	UserID   int64 `gorm:"primaryKey" json:"user_id"`
	OfficeID int64 `gorm:"primaryKey" json:"office_id"`
	RoleID   int64 `gorm:"primaryKey" json:"role_id"`
}

type Category struct {
	ID               int64  `gorm:"primaryKey" json:"id"`
	Name             string `gorm:"uniqueIndex;not null" json:"name"`
	OfficeID         int64  `gorm:"not null;index" json:"office_id"`
	ExternalOfficeID *int64 `gorm:"index" json:"external_office_id,omitempty"`
}

// Report is the persisted report row. For anonymous reports ReporterID is
// left NULL and the reporter is kept sealed in ReporterIDEnc.
type Report struct {
	ID                   int64     `gorm:"primaryKey"`
	Title                string    `gorm:"not null"`
	Description          string    `gorm:"type:text;not null"`
	Latitude             float64   `gorm:"not null"`
	Longitude            float64   `gorm:"not null"`
	CategoryID           int64     `gorm:"not null;index"`
	Status               string    `gorm:"type:varchar(20);not null;default:'pending';index"`
	ReporterID           *int64    `gorm:"index"`
	ReporterIDEnc        string    `gorm:"column:reporter_id_enc"`
	Anonymous            bool      `gorm:"not null;default:false"`
	Photos               []string  `gorm:"serializer:json"`
	TechnicianID         *int64    `gorm:"index"`
	AssignedExternal     *bool
	ExternalMaintainerID *int64 `gorm:"index"`
	RejectExplanation    string `gorm:"type:text"`
	Version              int64  `gorm:"not null;default:0"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&User{}, &Office{}, &Role{}, &UserOffice{}, &Category{}, &Report{}}
}
