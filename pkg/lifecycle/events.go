package lifecycle

import (
	"context"
	"time"
)

// Operation names a transition. The values double as metric labels and as
// the operation field of published events.
type Operation string

const (
	OpReview         Operation = "review"
	OpStart          Operation = "start"
	OpFinish         Operation = "finish"
	OpSuspend        Operation = "suspend"
	OpResume         Operation = "resume"
	OpAssignExternal Operation = "assign_external"
	OpExternalStart  Operation = "external_start"
	OpExternalFinish Operation = "external_finish"
	OpExternalSusp   Operation = "external_suspend"
	OpExternalResume Operation = "external_resume"
)

// Event describes one applied transition.
type Event struct {
	ReportID   int64     `json:"report_id"`
	Title      string    `json:"title"`
	Operation  Operation `json:"operation"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	ActorID    int64     `json:"actor_id"`
	ReporterID *int64    `json:"reporter_id,omitempty"`
	CategoryID int64     `json:"category_id"`
	At         time.Time `json:"at"`
}

// Publisher receives an Event after each successful write. Delivery is
// best effort: a publish failure never undoes the transition.
type Publisher interface {
	PublishTransition(ctx context.Context, event Event) error
}
