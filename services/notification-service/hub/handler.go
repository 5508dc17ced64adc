package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/authz"
	"participium/pkg/identity"
	"participium/pkg/middleware"
	"participium/pkg/response"
)

const heartbeatInterval = 25 * time.Second

// Subscribe streams the caller's notifications as server-sent events. The
// token may come from the Authorization header or the token query parameter.
func (h *Hub) Subscribe(secret []byte, guard *authz.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := middleware.IdentityFromToken(secret, middleware.BearerToken(r))
		if err := guard.RequireBroadRole(id, identity.RoleCitizen, identity.RoleStaff, identity.RoleAdmin); err != nil {
			h.log.Warn().Str("trace_id", middleware.GetTraceID(r)).Msg("rejected subscription")
			response.Err(w, err)
			return
		}

		var offices []int64
		if id.Role.Is(identity.RoleStaff) {
			roles, err := guard.OfficeRoles(r.Context(), id)
			if err != nil {
				h.log.Error().Err(err).Int64("user_id", id.CallerID).Msg("resolve offices failed")
				response.Err(w, err)
				return
			}
			for _, role := range roles {
				offices = append(offices, role.OfficeID)
			}
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Err(w, apperr.Internal("stream", fmt.Errorf("streaming unsupported")))
			return
		}

		client := NewClient(id.CallerID, id.Role, offices)
		if !h.Register(client) {
			response.Error(w, http.StatusServiceUnavailable, "Notification service is shutting down", "")
			return
		}
		defer h.Unregister(client)

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
			case n, ok := <-client.Send:
				if !ok {
					return
				}
				data, err := json.Marshal(n)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

// Health reports the number of connected clients.
func (h *Hub) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]interface{}{
			"status":            "UP",
			"service":           "notification-service",
			"connected_clients": h.ClientCount(),
			"broadcast_queue":   h.Pending(),
		})
	}
}

type RouterConfig struct {
	JWTSecret   []byte
	CORSOrigins []string
}

// NewRouter keeps the long-lived subscribe streams outside the request
// logger and metrics.
func NewRouter(log zerolog.Logger, cfg RouterConfig, h *Hub, guard *authz.Guard) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Trace-Id"},
		ExposedHeaders: []string{"X-Trace-Id"},
	}))

	subscribe := h.Subscribe(cfg.JWTSecret, guard)
	r.Get("/notifications/subscribe", subscribe)
	r.Get("/subscribe", subscribe)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggerMiddleware(log))
		r.Use(middleware.Recoverer(log))
		r.Use(middleware.MetricsMiddleware)
		r.Get("/health", h.Health())
		r.Handle("/metrics", middleware.GetMetricsHandler())
	})
	return r
}
