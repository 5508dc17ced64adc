package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"participium/pkg/apperr"
	"participium/pkg/identity"
	"participium/pkg/response"
)

const heartbeatInterval = 25 * time.Second

func (h *ReportHTTP) authenticated(r *http.Request) (identity.Identity, error) {
	id := caller(r)
	return id, h.Guard.RequireBroadRole(id, identity.RoleCitizen, identity.RoleStaff, identity.RoleAdmin)
}

// Conversations handles GET /api/conversations.
func (h *ReportHTTP) Conversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.authenticated(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		convs, err := h.Messaging.Conversations(r.Context(), id.CallerID)
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, "Conversations fetched successfully", convs)
	}
}

// Messages handles GET /api/conversations/{id}/messages.
func (h *ReportHTTP) Messages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.authenticated(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		msgs, err := h.Messaging.Messages(r.Context(), chi.URLParam(r, "id"), id.CallerID)
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, "Messages fetched successfully", msgs)
	}
}

// SendMessage handles POST /api/conversations/{id}/messages.
func (h *ReportHTTP) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.authenticated(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		var input struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(r, &input); err != nil {
			fail(w, r, err)
			return
		}
		msg, err := h.Messaging.Send(r.Context(), chi.URLParam(r, "id"), id.CallerID, input.Content)
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusCreated, "Message sent", msg)
	}
}

// Stream handles GET /api/conversations/{id}/stream as server-sent events.
func (h *ReportHTTP) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.authenticated(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		conv, err := h.Messaging.Conversation(r.Context(), chi.URLParam(r, "id"), id.CallerID)
		if err != nil {
			fail(w, r, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok || h.Subscriber == nil {
			fail(w, r, apperr.Internal("stream", fmt.Errorf("streaming unsupported")))
			return
		}

		sub, err := h.Subscriber.Subscribe(r.Context(), conv.ID)
		if err != nil {
			fail(w, r, apperr.Internal("subscribe", err))
			return
		}
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"Connection established"}`)
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
