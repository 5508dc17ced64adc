package accounts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/identity"
	"participium/pkg/middleware"
	"participium/pkg/response"
)

type AuthHTTP struct {
	svc *Service
}

func NewAuthHTTP(svc *Service) *AuthHTTP {
	return &AuthHTTP{svc: svc}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidArgument("request body is required")
		}
		return apperr.InvalidArgument("Invalid request payload")
	}
	return nil
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Warn().Str("path", r.URL.Path).Int("status", apperr.KindOf(err).Status()).Msg("request rejected")
	}
	response.Err(w, err)
}

// Login handles POST /api/auth/login.
func (h *AuthHTTP) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &input); err != nil {
			fail(w, r, err)
			return
		}
		session, err := h.svc.Login(r.Context(), input.Username, input.Password)
		if err != nil {
			fail(w, r, err)
			return
		}
		zerolog.Ctx(r.Context()).Info().Int64("user_id", session.User.ID).Str("role", session.User.Role).Msg("user logged in")
		response.Success(w, http.StatusOK, "Login successful", session)
	}
}

// Me handles GET /api/auth/me.
func (h *AuthHTTP) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.svc.Me(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, "User profile fetched", user)
	}
}

// CreateUser handles POST /api/users.
func (h *AuthHTTP) CreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input NewAccount
		if err := decodeJSON(r, &input); err != nil {
			fail(w, r, err)
			return
		}
		user, err := h.svc.Register(r.Context(), identity.FromContext(r.Context()), input)
		if err != nil {
			fail(w, r, err)
			return
		}
		zerolog.Ctx(r.Context()).Info().Int64("user_id", user.ID).Str("role", user.Role).Msg("user registered")
		response.Success(w, http.StatusCreated, "User registered successfully", user)
	}
}

// AssignOffice handles POST /api/users/{id}/offices.
func (h *AuthHTTP) AssignOffice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := identity.FromContext(r.Context())
		if err := h.svc.guard.RequireBroadRole(caller, identity.RoleAdmin); err != nil {
			fail(w, r, err)
			return
		}
		userID, err := identity.ParseID(chi.URLParam(r, "id"))
		if err != nil || userID <= 0 {
			fail(w, r, apperr.InvalidArgument("invalid user id"))
			return
		}
		var input struct {
			OfficeID identity.FlexID `json:"officeId"`
			RoleID   identity.FlexID `json:"roleId"`
		}
		if err := decodeJSON(r, &input); err != nil {
			fail(w, r, err)
			return
		}
		if err := h.svc.AssignOffice(r.Context(), caller, userID, input.OfficeID.Int64(), input.RoleID.Int64()); err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, "Office role assigned", map[string]int64{
			"userId":   userID,
			"officeId": input.OfficeID.Int64(),
			"roleId":   input.RoleID.Int64(),
		})
	}
}

// Offices handles GET /api/offices.
func (h *AuthHTTP) Offices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offices, err := h.svc.Offices(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, "Offices fetched successfully", offices)
	}
}

// Roles handles GET /api/roles.
func (h *AuthHTTP) Roles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := h.svc.Roles(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, "Roles fetched successfully", roles)
	}
}

type RouterConfig struct {
	JWTSecret   []byte
	CORSOrigins []string
	// LoginRateLimit is login attempts per minute per IP; zero disables it.
	LoginRateLimit int
}

func NewRouter(log zerolog.Logger, cfg RouterConfig, h *AuthHTTP, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-Id"},
		ExposedHeaders:   []string{"X-Trace-Id"},
		AllowCredentials: true,
	}))
	r.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	if health != nil {
		r.Get("/health", health)
	}
	r.Handle("/metrics", middleware.GetMetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.LoginRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.LoginRateLimit, time.Minute))
			}
			r.Post("/auth/login", h.Login())
		})
		r.Get("/auth/me", h.Me())
		r.Post("/users", h.CreateUser())
		r.Post("/users/{id}/offices", h.AssignOffice())
		r.Get("/offices", h.Offices())
		r.Get("/roles", h.Roles())
	})

	return r
}
