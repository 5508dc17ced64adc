// Package store holds the gorm and mongo implementations of the
// persistence interfaces declared by the domain packages.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"participium/pkg/lifecycle"
	"participium/pkg/models"
	"participium/pkg/security"
)

// ReportStore persists reports and categories in postgres.
type ReportStore struct {
	db     *gorm.DB
	sealer *security.Sealer
}

func NewReportStore(db *gorm.DB, sealer *security.Sealer) *ReportStore {
	return &ReportStore{db: db, sealer: sealer}
}

func (s *ReportStore) GetReport(ctx context.Context, id int64) (lifecycle.Report, error) {
	var row models.Report
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lifecycle.Report{}, lifecycle.ErrReportNotFound
	}
	if err != nil {
		return lifecycle.Report{}, fmt.Errorf("get report %d: %w", id, err)
	}
	return s.toDomain(row)
}

// SaveReport writes the mutable columns only if the stored version still
// equals expectedVersion.
func (s *ReportStore) SaveReport(ctx context.Context, r lifecycle.Report, expectedVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND version = ?", r.ID, expectedVersion).
		Updates(map[string]any{
			"status":                 string(r.Status),
			"category_id":            r.CategoryID,
			"technician_id":          r.TechnicianID,
			"assigned_external":      r.AssignedExternal,
			"external_maintainer_id": r.ExternalMaintainerID,
			"reject_explanation":     r.RejectExplanation,
			"version":                r.Version,
			"updated_at":             r.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("save report %d: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", r.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("check report %d: %w", r.ID, err)
	}
	if count == 0 {
		return lifecycle.ErrReportNotFound
	}
	return lifecycle.ErrStaleReport
}

func (s *ReportStore) GetCategory(ctx context.Context, id int64) (lifecycle.Category, error) {
	var row models.Category
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lifecycle.Category{}, lifecycle.ErrCategoryNotFound
	}
	if err != nil {
		return lifecycle.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return categoryToDomain(row), nil
}

func (s *ReportStore) Categories(ctx context.Context) ([]lifecycle.Category, error) {
	var rows []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]lifecycle.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, categoryToDomain(row))
	}
	return out, nil
}

// CreateReport inserts a new report and returns it with its id.
func (s *ReportStore) CreateReport(ctx context.Context, r lifecycle.Report) (lifecycle.Report, error) {
	row := models.Report{
		Title:       r.Title,
		Description: r.Description,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		CategoryID:  r.CategoryID,
		Status:      string(r.Status),
		Anonymous:   r.Anonymous,
		Photos:      r.Photos,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ReporterID != nil {
		if r.Anonymous {
			sealed, err := s.sealer.Seal(strconv.FormatInt(*r.ReporterID, 10))
			if err != nil {
				return lifecycle.Report{}, fmt.Errorf("seal reporter: %w", err)
			}
			row.ReporterIDEnc = sealed
		} else {
			row.ReporterID = r.ReporterID
		}
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return lifecycle.Report{}, fmt.Errorf("create report: %w", err)
	}
	return s.toDomain(row)
}

// ListReports returns reports in the given statuses, newest first. No
// statuses means every report.
func (s *ReportStore) ListReports(ctx context.Context, statuses ...lifecycle.Status) ([]lifecycle.Report, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	var rows []models.Report
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return s.toDomainAll(rows)
}

// OfficeQueue returns the reports a staff member services: reports of
// categories owned by one of internalOffices that were not handed off, and
// handed-off reports whose category's external office is one of
// externalOffices. Pending and rejected reports never appear.
func (s *ReportStore) OfficeQueue(ctx context.Context, internalOffices, externalOffices []int64) ([]lifecycle.Report, error) {
	if len(internalOffices) == 0 && len(externalOffices) == 0 {
		return []lifecycle.Report{}, nil
	}
	var rows []models.Report
	err := s.db.WithContext(ctx).
		Select("reports.*").
		Joins("JOIN categories ON categories.id = reports.category_id").
		Where("reports.status NOT IN ?", []string{string(lifecycle.StatusPending), string(lifecycle.StatusRejected)}).
		Where(
			s.db.Where("categories.office_id IN ? AND reports.assigned_external IS NOT TRUE", nonEmpty(internalOffices)).
				Or("categories.external_office_id IN ? AND reports.assigned_external IS TRUE", nonEmpty(externalOffices)),
		).
		Order("reports.updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("office queue: %w", err)
	}
	return s.toDomainAll(rows)
}

// StatusCounts returns the number of reports per status, zero included.
func (s *ReportStore) StatusCounts(ctx context.Context) (map[lifecycle.Status]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Report{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	out := make(map[lifecycle.Status]int64, len(rows))
	for _, st := range lifecycle.Statuses() {
		out[st] = 0
	}
	for _, row := range rows {
		out[lifecycle.Status(row.Status)] = row.Count
	}
	return out, nil
}

func (s *ReportStore) toDomainAll(rows []models.Report) ([]lifecycle.Report, error) {
	out := make([]lifecycle.Report, 0, len(rows))
	for _, row := range rows {
		r, err := s.toDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *ReportStore) toDomain(row models.Report) (lifecycle.Report, error) {
	r := lifecycle.Report{
		ID:                   row.ID,
		Title:                row.Title,
		Description:          row.Description,
		Latitude:             row.Latitude,
		Longitude:            row.Longitude,
		CategoryID:           row.CategoryID,
		Status:               lifecycle.Status(row.Status),
		ReporterID:           row.ReporterID,
		Anonymous:            row.Anonymous,
		Photos:               row.Photos,
		TechnicianID:         row.TechnicianID,
		AssignedExternal:     row.AssignedExternal,
		ExternalMaintainerID: row.ExternalMaintainerID,
		RejectExplanation:    row.RejectExplanation,
		Version:              row.Version,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if row.ReporterIDEnc != "" {
		plain, err := s.sealer.Open(row.ReporterIDEnc)
		if err != nil {
			return lifecycle.Report{}, fmt.Errorf("open reporter of report %d: %w", row.ID, err)
		}
		id, err := strconv.ParseInt(plain, 10, 64)
		if err != nil {
			return lifecycle.Report{}, fmt.Errorf("parse reporter of report %d: %w", row.ID, err)
		}
		r.ReporterID = &id
	}
	return r, nil
}

func categoryToDomain(row models.Category) lifecycle.Category {
	return lifecycle.Category{
		ID:               row.ID,
		Name:             row.Name,
		OfficeID:         row.OfficeID,
		ExternalOfficeID: row.ExternalOfficeID,
	}
}

func statusStrings(statuses []lifecycle.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// nonEmpty keeps IN clauses valid when a caller has no offices of a kind.
func nonEmpty(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{0}
	}
	return ids
}
