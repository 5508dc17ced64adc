package lifecycle

import (
	"context"

	"participium/pkg/apperr"
)

// AssignToExternalMaintainer hands an assigned report off to the external
// track. The status is left unchanged; the flag can only be set once.
func (m *Machine) AssignToExternalMaintainer(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpAssignExternal, reportID, actorID, func(r *Report) error {
		if r.HandedOff() {
			return apperr.NotEligible("report already handed off")
		}
		if r.Status != StatusAssigned {
			return apperr.NotEligible("report is not assigned")
		}
		r.AssignedExternal = ptr(true)
		return nil
	})
}

// ExternalStart binds actorID as external maintainer of an assigned,
// handed-off report. A report resumed by its maintainer stays bound to them.
func (m *Machine) ExternalStart(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpExternalStart, reportID, actorID, func(r *Report) error {
		if !r.HandedOff() {
			return apperr.NotEligible("report not handed off")
		}
		if r.Status != StatusAssigned {
			return apperr.NotEligible("report is not assigned")
		}
		if r.ExternalMaintainerID != nil && *r.ExternalMaintainerID != actorID {
			return apperr.NotEligible("caller is not the bound maintainer")
		}
		r.Status = StatusInProgress
		r.ExternalMaintainerID = ptr(actorID)
		return nil
	})
}

// ExternalFinish resolves a report owned by the external maintainer.
func (m *Machine) ExternalFinish(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpExternalFinish, reportID, actorID, func(r *Report) error {
		if !r.HandedOff() {
			return apperr.NotEligible("report not handed off")
		}
		if r.Status != StatusInProgress {
			return apperr.NotEligible("report is not in progress")
		}
		if !sameID(r.ExternalMaintainerID, actorID) {
			return apperr.NotEligible("caller is not the bound maintainer")
		}
		r.Status = StatusResolved
		return nil
	})
}

// ExternalSuspend pauses a handed-off report.
func (m *Machine) ExternalSuspend(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpExternalSusp, reportID, actorID, func(r *Report) error {
		if !r.HandedOff() {
			return apperr.NotEligible("report not handed off")
		}
		switch r.Status {
		case StatusAssigned:
		case StatusInProgress:
			if !sameID(r.ExternalMaintainerID, actorID) {
				return apperr.NotEligible("caller is not the bound maintainer")
			}
		default:
			return apperr.NotEligible("report cannot be suspended from " + string(r.Status))
		}
		r.Status = StatusSuspended
		return nil
	})
}

// ExternalResume returns a suspended handed-off report to assigned, not to
// in_progress as the internal track does. The maintainer starts it again.
func (m *Machine) ExternalResume(ctx context.Context, reportID, actorID int64) (Report, error) {
	return m.transition(ctx, OpExternalResume, reportID, actorID, func(r *Report) error {
		if !r.HandedOff() {
			return apperr.NotEligible("report not handed off")
		}
		if r.Status != StatusSuspended {
			return apperr.NotEligible("report is not suspended")
		}
		if r.ExternalMaintainerID == nil {
			if err := m.requireOwningOffice(ctx, r.CategoryID, actorID, true); err != nil {
				return err
			}
			r.ExternalMaintainerID = ptr(actorID)
		} else if *r.ExternalMaintainerID != actorID {
			return apperr.NotEligible("caller is not the bound maintainer")
		}
		r.Status = StatusAssigned
		return nil
	})
}
