package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/authz"
)

// Machine validates and applies report transitions. It keeps no state of its
// own: every call re-reads the report and writes conditionally on the
// version it read.
type Machine struct {
	store     Store
	directory authz.OfficeRoleDirectory
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Machine)

func WithPublisher(p Publisher) Option {
	return func(m *Machine) { m.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine builds a Machine. The directory decides who may claim a
// suspended report that has no bound owner.
func NewMachine(store Store, directory authz.OfficeRoleDirectory, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		directory: directory,
		log:       zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start binds actorID as technician of an assigned report.
func (m *Machine) Start(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpStart, reportID, actorID, func(r *Report) error {
		if r.HandedOff() {
			return apperr.NotEligible("report handed off to external maintainer")
		}
		if r.Status != StatusAssigned {
			return apperr.NotEligible("report is not assigned")
		}
		r.Status = StatusInProgress
		r.TechnicianID = ptr(actorID)
		return nil
	})
}

// Finish resolves a report in progress. Only the bound technician may
// finish; anyone else gets the same outcome as for a missing report.
func (m *Machine) Finish(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpFinish, reportID, actorID, func(r *Report) error {
		if r.HandedOff() {
			return apperr.NotEligible("report handed off to external maintainer")
		}
		if r.Status != StatusInProgress {
			return apperr.NotEligible("report is not in progress")
		}
		if !sameID(r.TechnicianID, actorID) {
			return apperr.NotEligible("caller is not the bound technician")
		}
		r.Status = StatusResolved
		return nil
	})
}

// Suspend pauses an assigned or in-progress report. An in-progress report
// may only be suspended by its technician.
func (m *Machine) Suspend(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpSuspend, reportID, actorID, func(r *Report) error {
		if r.HandedOff() {
			return apperr.NotEligible("report handed off to external maintainer")
		}
		switch r.Status {
		case StatusAssigned:
		case StatusInProgress:
			if !sameID(r.TechnicianID, actorID) {
				return apperr.NotEligible("caller is not the bound technician")
			}
		default:
			return apperr.NotEligible("report cannot be suspended from " + string(r.Status))
		}
		r.Status = StatusSuspended
		return nil
	})
}

// Resume puts a suspended report back in progress. With no technician bound
// any staff of the office owning the report's category may resume and
// becomes the technician.
func (m *Machine) Resume(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpResume, reportID, actorID, func(r *Report) error {
		if r.HandedOff() {
			return apperr.NotEligible("report handed off to external maintainer")
		}
		if r.Status != StatusSuspended {
			return apperr.NotEligible("report is not suspended")
		}
		if r.TechnicianID == nil {
			if err := m.requireOwningOffice(ctx, r.CategoryID, actorID, false); err != nil {
				return err
			}
			r.TechnicianID = ptr(actorID)
		} else if *r.TechnicianID != actorID {
			return apperr.NotEligible("caller is not the bound technician")
		}
		r.Status = StatusInProgress
		return nil
	})
}

// requireOwningOffice checks that actorID holds a role in the office that
// owns the category: the internal office, or the external one when
// external is set.
func (m *Machine) requireOwningOffice(ctx context.Context, categoryID, actorID int64, external bool) error {
	category, err := m.store.GetCategory(ctx, categoryID)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return apperr.NotEligible("report category not found")
		}
		return apperr.Internal("load category", err)
	}
	officeID := category.OfficeID
	if external {
		if category.ExternalOfficeID == nil {
			return apperr.NotEligible("category has no external office")
		}
		officeID = *category.ExternalOfficeID
	}

	roles, err := m.directory.RolesFor(ctx, actorID)
	if err != nil {
		return apperr.Internal("resolve office roles", err)
	}
	for _, role := range roles {
		if role.OfficeID == officeID && role.OfficeExternal == external {
			return nil
		}
	}
	return apperr.NotEligible("caller holds no role in the owning office")
}

func (m *Machine) transition(ctx context.Context, op Operation, reportID, actorID int64, mutate func(*Report) error) (Report, error) {
	current, err := m.store.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return Report{}, apperr.NotEligible("report not found")
		}
		return Report{}, apperr.Internal("load report", err)
	}

	next := current
	if err := mutate(&next); err != nil {
		return Report{}, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = m.now()

	if err := m.store.SaveReport(ctx, next, current.Version); err != nil {
		if errors.Is(err, ErrStaleReport) {
			return Report{}, apperr.NotEligible("report changed concurrently")
		}
		if errors.Is(err, ErrReportNotFound) {
			return Report{}, apperr.NotEligible("report not found")
		}
		return Report{}, apperr.Internal("save report", err)
	}

	m.publish(ctx, Event{
		ReportID:   next.ID,
		Title:      next.Title,
		Operation:  op,
		From:       current.Status,
		To:         next.Status,
		ActorID:    actorID,
		ReporterID: next.ReporterID,
		CategoryID: next.CategoryID,
		At:         next.UpdatedAt,
	})
	return next, nil
}

func (m *Machine) publish(ctx context.Context, event Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishTransition(ctx, event); err != nil {
		m.log.Warn().Err(err).
			Int64("report_id", event.ReportID).
			Str("operation", string(event.Operation)).
			Msg("transition applied but event publish failed")
	}
}
