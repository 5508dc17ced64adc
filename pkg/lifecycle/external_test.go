package lifecycle

import (
	"context"
	"testing"
)

func handedOff(id int64, status Status) Report {
	r := report(id, status)
	r.AssignedExternal = ptr(true)
	return r
}

func TestAssignToExternalMaintainer(t *testing.T) {
	store := newMemStore(report(1, StatusAssigned))
	m := newTestMachine(store)
	ctx := context.Background()

	got, err := m.AssignToExternalMaintainer(ctx, 1, techA)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !got.HandedOff() || got.Status != StatusAssigned {
		t.Fatalf("got flag=%v status=%s", got.AssignedExternal, got.Status)
	}

	_, err = m.AssignToExternalMaintainer(ctx, 1, techA)
	wantNotEligible(t, err)
}

func TestAssignToExternalRequiresAssigned(t *testing.T) {
	_, err := newTestMachine(newMemStore(report(1, StatusPending))).AssignToExternalMaintainer(context.Background(), 1, techA)
	wantNotEligible(t, err)
}

func TestExternalTrackRequiresHandOff(t *testing.T) {
	_, err := newTestMachine(newMemStore(report(1, StatusAssigned))).ExternalStart(context.Background(), 1, extM)
	wantNotEligible(t, err)
}

func TestScenarioDExternalTrack(t *testing.T) {
	store := newMemStore(handedOff(1, StatusAssigned))
	m := newTestMachine(store)
	ctx := context.Background()

	got, err := m.ExternalStart(ctx, 1, extM)
	if err != nil {
		t.Fatalf("external start: %v", err)
	}
	if got.Status != StatusInProgress || !sameID(got.ExternalMaintainerID, extM) || got.TechnicianID != nil {
		t.Fatalf("after start: %+v", got)
	}

	_, err = m.ExternalFinish(ctx, 1, techA)
	wantNotEligible(t, err)

	got, err = m.ExternalFinish(ctx, 1, extM)
	if err != nil {
		t.Fatalf("external finish: %v", err)
	}
	if got.Status != StatusResolved {
		t.Fatalf("status = %s, want resolved", got.Status)
	}
}

// The external track resumes to assigned while the internal track resumes
// to in_progress. This asserts the asymmetry as it is.
func TestExternalResumeReturnsToAssigned(t *testing.T) {
	r := handedOff(1, StatusSuspended)
	r.ExternalMaintainerID = ptr(extM)
	store := newMemStore(r)
	m := newTestMachine(store)
	ctx := context.Background()

	_, err := m.ExternalResume(ctx, 1, techA)
	wantNotEligible(t, err)

	got, err := m.ExternalResume(ctx, 1, extM)
	if err != nil {
		t.Fatalf("external resume: %v", err)
	}
	if got.Status != StatusAssigned {
		t.Fatalf("status = %s, want assigned", got.Status)
	}

	_, err = m.ExternalStart(ctx, 1, techA)
	wantNotEligible(t, err)
	if got, err = m.ExternalStart(ctx, 1, extM); err != nil || got.Status != StatusInProgress {
		t.Fatalf("restart by owner: %v %v", got.Status, err)
	}
}

func TestExternalResumeClaimsUnboundReport(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		category int64
		actor    int64
		ok       bool
	}{
		{"maintainer of the category's external office", 1, extM, true},
		{"staff of the owning internal office", 1, techA, false},
		{"staff of another internal office", 1, techC, false},
		{"external office not linked to the category", 1, extOther, false},
		{"category without external office", 5, extM, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := handedOff(1, StatusSuspended)
			r.CategoryID = tc.category
			store := newMemStore(r)
			got, err := newTestMachine(store).ExternalResume(ctx, 1, tc.actor)
			if !tc.ok {
				wantNotEligible(t, err)
				if r := store.get(t, 1); r.Status != StatusSuspended || r.ExternalMaintainerID != nil {
					t.Fatalf("report changed: %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("external resume: %v", err)
			}
			if !sameID(got.ExternalMaintainerID, tc.actor) || got.Status != StatusAssigned {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestExternalSuspend(t *testing.T) {
	ctx := context.Background()

	r := handedOff(1, StatusInProgress)
	r.ExternalMaintainerID = ptr(extM)
	m := newTestMachine(newMemStore(r))

	_, err := m.ExternalSuspend(ctx, 1, techA)
	wantNotEligible(t, err)

	got, err := m.ExternalSuspend(ctx, 1, extM)
	if err != nil {
		t.Fatalf("external suspend: %v", err)
	}
	if got.Status != StatusSuspended || !sameID(got.ExternalMaintainerID, extM) {
		t.Fatalf("got %+v", got)
	}

	_, err = m.ExternalSuspend(ctx, 1, extM)
	wantNotEligible(t, err)
}
