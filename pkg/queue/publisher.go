package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"participium/pkg/lifecycle"
)

const (
	TypeStatusUpdate = "status_update"
	TypeNewReport    = "new_report"
)

// Notification is the wire format of every message on the reports exchange.
type Notification struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ReportID       int64     `json:"report_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Operation      string    `json:"operation,omitempty"`
	UserID         int64     `json:"user_id,omitempty"`
	CategoryID     int64     `json:"category_id"`
	OfficeID       int64     `json:"office_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransitionNotification addresses a status change to the reporter.
func TransitionNotification(e lifecycle.Event) Notification {
	n := Notification{
		ID:             uuid.New().String(),
		Type:           TypeStatusUpdate,
		ReportID:       e.ReportID,
		Title:          e.Title,
		Message:        fmt.Sprintf("Report %q moved from %s to %s", e.Title, e.From, e.To),
		Status:         string(e.To),
		PreviousStatus: string(e.From),
		Operation:      string(e.Operation),
		CategoryID:     e.CategoryID,
		CreatedAt:      e.At,
	}
	if e.From == e.To {
		n.Message = fmt.Sprintf("Report %q was updated (%s)", e.Title, e.Operation)
	}
	if e.ReporterID != nil {
		n.UserID = *e.ReporterID
	}
	return n
}

// CreatedNotification announces a new report to the office owning its
// category.
func CreatedNotification(r lifecycle.Report, officeID int64) Notification {
	return Notification{
		ID:         uuid.New().String(),
		Type:       TypeNewReport,
		ReportID:   r.ID,
		Title:      r.Title,
		Message:    fmt.Sprintf("New report %q", r.Title),
		Status:     string(r.Status),
		CategoryID: r.CategoryID,
		OfficeID:   officeID,
		CreatedAt:  r.CreatedAt,
	}
}

// Publisher sends report events to the reports exchange.
type Publisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(ch *amqp.Channel) (*Publisher, error) {
	if err := DeclareExchange(ch); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) PublishTransition(ctx context.Context, e lifecycle.Event) error {
	return p.publish(ctx, KeyReportUpdated, TransitionNotification(e))
}

func (p *Publisher) PublishCreated(ctx context.Context, r lifecycle.Report, officeID int64) error {
	return p.publish(ctx, KeyReportCreated, CreatedNotification(r, officeID))
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		ExchangeReports,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
