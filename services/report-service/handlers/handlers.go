// Package handlers exposes the report lifecycle, the map view and the report
// conversations over HTTP. Every handler runs its guards explicitly before
// touching a report.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/authz"
	"participium/pkg/identity"
	"participium/pkg/lifecycle"
	"participium/pkg/messaging"
	"participium/pkg/response"
)

// ReportRepository is the report persistence the handlers need beyond the
// lifecycle store.
type ReportRepository interface {
	lifecycle.Store
	CreateReport(ctx context.Context, r lifecycle.Report) (lifecycle.Report, error)
	ListReports(ctx context.Context, statuses ...lifecycle.Status) ([]lifecycle.Report, error)
	OfficeQueue(ctx context.Context, internalOffices, externalOffices []int64) ([]lifecycle.Report, error)
	StatusCounts(ctx context.Context) (map[lifecycle.Status]int64, error)
	Categories(ctx context.Context) ([]lifecycle.Category, error)
}

type PhotoStore interface {
	Upload(ctx context.Context, userID int64, fileName, contentType string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// EventPublisher announces new reports; transitions are published by the
// lifecycle machine itself.
type EventPublisher interface {
	PublishCreated(ctx context.Context, r lifecycle.Report, officeID int64) error
}

type MessageStream interface {
	Messages() <-chan messaging.Message
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (MessageStream, error)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, conversationID string) (MessageStream, error)

func (f SubscriberFunc) Subscribe(ctx context.Context, conversationID string) (MessageStream, error) {
	return f(ctx, conversationID)
}

type Deps struct {
	Reports    ReportRepository
	Machine    *lifecycle.Machine
	Guard      *authz.Guard
	Messaging  *messaging.Service
	Photos     PhotoStore
	Events     EventPublisher
	Subscriber Subscriber
	ReviewRole string
}

// ReportHTTP wires HTTP endpoints to the lifecycle machine and stores.
type ReportHTTP struct {
	Deps
}

func NewReportHTTP(d Deps) *ReportHTTP {
	return &ReportHTTP{Deps: d}
}

func caller(r *http.Request) identity.Identity {
	return identity.FromContext(r.Context())
}

func reportID(r *http.Request) (int64, error) {
	id, err := identity.ParseID(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, apperr.InvalidArgument("invalid report id")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidArgument("request body is required")
		}
		return apperr.InvalidArgument("invalid request payload")
	}
	return nil
}

// fail logs the parts of err that never reach the client and writes the
// mapped response.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	var appErr *apperr.Error
	switch {
	case apperr.KindOf(err) == apperr.KindInternal:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	case errors.As(err, &appErr) && appErr.Reason != "":
		log.Debug().Str("reason", appErr.Reason).Str("path", r.URL.Path).Msg("request rejected")
	}
	response.Err(w, err)
}
