package lifecycle

import (
	"context"
	"errors"
	"strings"

	"participium/pkg/apperr"
)

const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// ReviewDecision is the body of a review call.
type ReviewDecision struct {
	Action      string
	Explanation string
	CategoryID  *int64
}

// Review moves a pending report to assigned or rejected. Malformed input is
// rejected before the report is looked up, so a bad action is reported the
// same way whether or not the report exists.
func (m *Machine) Review(ctx context.Context, reportID, actorID int64, d ReviewDecision) (Report, error) {
	action := strings.TrimSpace(d.Action)
	explanation := strings.TrimSpace(d.Explanation)

	switch action {
	case ActionAccept:
		if d.CategoryID != nil {
			if _, err := m.store.GetCategory(ctx, *d.CategoryID); err != nil {
				if errors.Is(err, ErrCategoryNotFound) {
					return Report{}, apperr.InvalidArgument("unknown category")
				}
				return Report{}, apperr.Internal("load category", err)
			}
		}
	case ActionReject:
		if explanation == "" {
			return Report{}, apperr.InvalidArgument("explanation is required when rejecting a report")
		}
	default:
		return Report{}, apperr.InvalidArgument(`action must be "accept" or "reject"`)
	}

	return m.transition(ctx, OpReview, reportID, actorID, func(r *Report) error {
		if r.Status != StatusPending {
			return apperr.NotEligible("report is not pending")
		}
		if action == ActionReject {
			r.Status = StatusRejected
			r.RejectExplanation = explanation
			return nil
		}
		r.Status = StatusAssigned
		if d.CategoryID != nil {
			r.CategoryID = *d.CategoryID
		}
		return nil
	})
}
