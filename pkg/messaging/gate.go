// Package messaging keeps the per-report conversations between citizens and
// the staff servicing their reports. A conversation closes as soon as its
// report reaches a terminal status.
package messaging

import (
	"context"
	"errors"
	"slices"
	"time"

	"participium/pkg/apperr"
	"participium/pkg/lifecycle"
)

type Conversation struct {
	ID           string    `json:"id"`
	ReportID     int64     `json:"reportId"`
	Participants []int64   `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	return slices.Contains(c.Participants, userID)
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReportLookup is the slice of the report store the gate consults.
type ReportLookup interface {
	GetReport(ctx context.Context, id int64) (lifecycle.Report, error)
}

// Gate decides whether a sender may append to a conversation.
type Gate struct {
	reports ReportLookup
}

func NewGate(reports ReportLookup) *Gate {
	return &Gate{reports: reports}
}

// CheckSend verifies participation, report existence and that the report is
// still open, in that order.
func (g *Gate) CheckSend(ctx context.Context, conv Conversation, senderID int64) error {
	if !conv.HasParticipant(senderID) {
		return apperr.Forbidden("not a participant of this conversation")
	}
	report, err := g.reports.GetReport(ctx, conv.ReportID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrReportNotFound) {
			return apperr.NotFound("report not found")
		}
		return apperr.Internal("load report", err)
	}
	if report.Status.Terminal() {
		return apperr.InvalidState("conversation closed")
	}
	return nil
}
