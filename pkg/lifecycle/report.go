// Package lifecycle owns the report status machine: the internal technician
// track, the external maintainer track and the review decision that moves
// a report out of pending.
package lifecycle

import (
	"context"
	"errors"
	"time"
)

// Status is the single active state of a report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusSuspended  Status = "suspended"
	StatusResolved   Status = "resolved"
)

var allStatuses = []Status{
	StatusPending, StatusAssigned, StatusRejected,
	StatusInProgress, StatusSuspended, StatusResolved,
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus accepts the lowercase wire form.
func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no operation may move a report out of s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusResolved
}

// Report is the lifecycle view of a report. Version is bumped on every
// write and guards the conditional update.
type Report struct {
	ID                   int64     `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	CategoryID           int64     `json:"categoryId"`
	Status               Status    `json:"status"`
	ReporterID           *int64    `json:"reporterId,omitempty"`
	Anonymous            bool      `json:"anonymous"`
	Photos               []string  `json:"photos,omitempty"`
	TechnicianID         *int64    `json:"technicianId"`
	AssignedExternal     *bool     `json:"assignedExternal"`
	ExternalMaintainerID *int64    `json:"externalMaintainerId"`
	RejectExplanation    string    `json:"reject_explanation,omitempty"`
	Version              int64     `json:"-"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// HandedOff reports whether the external maintainer track owns the report.
func (r Report) HandedOff() bool {
	return r.AssignedExternal != nil && *r.AssignedExternal
}

// Category is the read-only view the machine needs of a category.
type Category struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	OfficeID         int64  `json:"officeId"`
	ExternalOfficeID *int64 `json:"externalOfficeId,omitempty"`
}

var (
	ErrReportNotFound   = errors.New("report not found")
	ErrCategoryNotFound = errors.New("category not found")
	// ErrStaleReport is returned by SaveReport when the stored version no
	// longer matches the one the caller read.
	ErrStaleReport = errors.New("report changed since it was read")
)

// Store is the persistence collaborator. SaveReport must be a conditional
// write: it succeeds only if the stored version equals expectedVersion.
type Store interface {
	GetReport(ctx context.Context, id int64) (Report, error)
	SaveReport(ctx context.Context, report Report, expectedVersion int64) error
	GetCategory(ctx context.Context, id int64) (Category, error)
}

func ptr[T any](v T) *T { return &v }

func sameID(a *int64, b int64) bool {
	return a != nil && *a == b
}
