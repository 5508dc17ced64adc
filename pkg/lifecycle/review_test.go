package lifecycle

import (
	"context"
	"testing"

	"participium/pkg/apperr"
)

func TestReviewAcceptUpdatesCategory(t *testing.T) {
	store := newMemStore(report(1, StatusPending))
	m := newTestMachine(store)

	got, err := m.Review(context.Background(), 1, techA, ReviewDecision{Action: ActionAccept, CategoryID: ptr(int64(5))})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != StatusAssigned || got.CategoryID != 5 {
		t.Fatalf("got status=%s category=%d, want assigned/5", got.Status, got.CategoryID)
	}
}

func TestReviewAcceptKeepsCategoryWhenOmitted(t *testing.T) {
	store := newMemStore(report(1, StatusPending))
	got, err := newTestMachine(store).Review(context.Background(), 1, techA, ReviewDecision{Action: ActionAccept})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.CategoryID != 1 {
		t.Fatalf("category = %d, want 1", got.CategoryID)
	}
}

func TestReviewReject(t *testing.T) {
	store := newMemStore(report(1, StatusPending))
	got, err := newTestMachine(store).Review(context.Background(), 1, techA, ReviewDecision{Action: ActionReject, Explanation: "  duplicate  "})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != StatusRejected || got.RejectExplanation != "duplicate" {
		t.Fatalf("got status=%s explanation=%q", got.Status, got.RejectExplanation)
	}
}

func TestReviewInvalidInputIgnoresReportExistence(t *testing.T) {
	cases := []struct {
		name     string
		reportID int64
		decision ReviewDecision
	}{
		{name: "unknown action on existing report", reportID: 1, decision: ReviewDecision{Action: "approve"}},
		{name: "unknown action on missing report", reportID: 404, decision: ReviewDecision{Action: "approve"}},
		{name: "empty action", reportID: 1, decision: ReviewDecision{}},
		{name: "uppercase action", reportID: 1, decision: ReviewDecision{Action: "ACCEPT"}},
		{name: "reject without explanation", reportID: 1, decision: ReviewDecision{Action: ActionReject}},
		{name: "reject with blank explanation on missing report", reportID: 404, decision: ReviewDecision{Action: ActionReject, Explanation: "   "}},
		{name: "accept with unknown category", reportID: 1, decision: ReviewDecision{Action: ActionAccept, CategoryID: ptr(int64(77))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore(report(1, StatusPending))
			_, err := newTestMachine(store).Review(context.Background(), tc.reportID, techA, tc.decision)
			if apperr.KindOf(err) != apperr.KindInvalidArgument {
				t.Fatalf("kind = %v, want invalid argument (err=%v)", apperr.KindOf(err), err)
			}
			if store.saves != 0 || store.get(t, 1).Status != StatusPending {
				t.Fatal("invalid input must not touch the report")
			}
		})
	}
}

func TestReviewRequiresPending(t *testing.T) {
	store := newMemStore(report(1, StatusAssigned))
	_, err := newTestMachine(store).Review(context.Background(), 1, techA, ReviewDecision{Action: ActionReject, Explanation: "late"})
	wantNotEligible(t, err)
}

func TestStatusHelpers(t *testing.T) {
	if !StatusResolved.Terminal() || !StatusRejected.Terminal() || StatusSuspended.Terminal() {
		t.Fatal("terminal set must be exactly rejected and resolved")
	}
	if st, ok := ParseStatus("in_progress"); !ok || st != StatusInProgress {
		t.Fatalf("ParseStatus = %q, %v", st, ok)
	}
	if _, ok := ParseStatus("IN_PROGRESS"); ok {
		t.Fatal("wire form is lowercase")
	}
	if len(Statuses()) != 6 {
		t.Fatal("six statuses expected")
	}
}
