package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/identity"
	"participium/pkg/lifecycle"
	"participium/pkg/middleware"
	"participium/pkg/response"
)

type transitionFunc func(ctx context.Context, reportID, actorID int64) (lifecycle.Report, error)

// reportView is the staff view of a report with presigned photo links.
type reportView struct {
	lifecycle.Report
	PhotoURLs []string `json:"photoUrls,omitempty"`
}

// mapView is what citizens see on the map. Anonymous reports carry no
// reporter.
type mapView struct {
	ID         int64            `json:"id"`
	Title      string           `json:"title"`
	Latitude   float64          `json:"latitude"`
	Longitude  float64          `json:"longitude"`
	CategoryID int64            `json:"categoryId"`
	Status     lifecycle.Status `json:"status"`
	ReporterID *int64           `json:"reporterId,omitempty"`
	Anonymous  bool             `json:"anonymous"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func toMapView(r lifecycle.Report) mapView {
	v := mapView{
		ID:         r.ID,
		Title:      r.Title,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		CategoryID: r.CategoryID,
		Status:     r.Status,
		Anonymous:  r.Anonymous,
		CreatedAt:  r.CreatedAt,
	}
	if !r.Anonymous {
		v.ReporterID = r.ReporterID
	}
	return v
}

// maskReporter drops the reporter of an anonymous report. The lifecycle keeps
// the unsealed id for notifications; responses never carry it.
func maskReporter(r lifecycle.Report) lifecycle.Report {
	if r.Anonymous {
		r.ReporterID = nil
	}
	return r
}

func maskReporters(reports []lifecycle.Report) []lifecycle.Report {
	out := make([]lifecycle.Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, maskReporter(r))
	}
	return out
}

// List handles GET /api/reports.
func (h *ReportHTTP) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Guard.RequireBroadRole(caller(r), identity.RoleStaff); err != nil {
			fail(w, r, err)
			return
		}
		var statuses []lifecycle.Status
		if s := r.URL.Query().Get("status"); s != "" {
			st, ok := lifecycle.ParseStatus(s)
			if !ok {
				fail(w, r, apperr.InvalidArgument("unknown status filter"))
				return
			}
			statuses = append(statuses, st)
		}
		reports, err := h.Reports.ListReports(r.Context(), statuses...)
		if err != nil {
			fail(w, r, apperr.Internal("list reports", err))
			return
		}
		response.Success(w, http.StatusOK, "Reports fetched successfully", maskReporters(reports))
	}
}

// Get handles GET /api/reports/{id}.
func (h *ReportHTTP) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := caller(r)
		if err := h.Guard.RequireBroadRole(id, identity.RoleStaff); err != nil {
			fail(w, r, err)
			return
		}
		if err := h.Guard.RequireNamedRole(r.Context(), id, h.ReviewRole); err != nil {
			fail(w, r, err)
			return
		}
		reportID, err := reportID(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		report, err := h.Reports.GetReport(r.Context(), reportID)
		if errors.Is(err, lifecycle.ErrReportNotFound) {
			fail(w, r, apperr.NotFound("report not found"))
			return
		}
		if err != nil {
			fail(w, r, apperr.Internal("load report", err))
			return
		}
		response.Success(w, http.StatusOK, "Report fetched successfully", h.withPhotoURLs(r, report))
	}
}

func (h *ReportHTTP) withPhotoURLs(r *http.Request, report lifecycle.Report) reportView {
	view := reportView{Report: maskReporter(report)}
	if h.Photos == nil {
		return view
	}
	for _, key := range report.Photos {
		u, err := h.Photos.URL(r.Context(), key)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("key", key).Msg("failed to presign photo")
			continue
		}
		view.PhotoURLs = append(view.PhotoURLs, u)
	}
	return view
}

type reviewInput struct {
	Action      string           `json:"action"`
	Explanation string           `json:"explanation"`
	CategoryID  *identity.FlexID `json:"categoryId"`
}

type (
	guardFunc func(r *http.Request, id identity.Identity) error
	applyFunc func(r *http.Request, reportID, actorID int64) (lifecycle.Report, error)
)

// transition runs guard, then apply, and records the outcome.
func (h *ReportHTTP) transition(op lifecycle.Operation, message string, guard guardFunc, apply applyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := h.runTransition(r, guard, apply)
		middleware.RecordTransition(string(op), err)
		if err != nil {
			fail(w, r, err)
			return
		}
		response.Success(w, http.StatusOK, message, maskReporter(report))
	}
}

func (h *ReportHTTP) runTransition(r *http.Request, guard guardFunc, apply applyFunc) (lifecycle.Report, error) {
	id := caller(r)
	if err := guard(r, id); err != nil {
		return lifecycle.Report{}, err
	}
	reportID, err := reportID(r)
	if err != nil {
		return lifecycle.Report{}, err
	}
	return apply(r, reportID, id.CallerID)
}

func (h *ReportHTTP) staff(r *http.Request, id identity.Identity) error {
	return h.Guard.RequireBroadRole(id, identity.RoleStaff)
}

func (h *ReportHTTP) reviewer(r *http.Request, id identity.Identity) error {
	return h.Guard.RequireNamedRole(r.Context(), id, h.ReviewRole)
}

func (h *ReportHTTP) internalStaff(r *http.Request, id identity.Identity) error {
	if err := h.staff(r, id); err != nil {
		return err
	}
	_, err := h.Guard.RequireOfficeKind(r.Context(), id, false)
	return err
}

func (h *ReportHTTP) externalStaff(r *http.Request, id identity.Identity) error {
	if err := h.staff(r, id); err != nil {
		return err
	}
	_, err := h.Guard.RequireOfficeKind(r.Context(), id, true)
	return err
}

func plain(fn transitionFunc) applyFunc {
	return func(r *http.Request, reportID, actorID int64) (lifecycle.Report, error) {
		return fn(r.Context(), reportID, actorID)
	}
}

// binding applies fn and then adds the actor, now bound to the report, to
// its conversation. A failed join is logged only.
func (h *ReportHTTP) binding(fn transitionFunc) applyFunc {
	return func(r *http.Request, reportID, actorID int64) (lifecycle.Report, error) {
		report, err := fn(r.Context(), reportID, actorID)
		if err != nil {
			return report, err
		}
		if h.Messaging != nil {
			if err := h.Messaging.Join(r.Context(), report.ID, actorID); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Int64("report_id", report.ID).Msg("transition applied but conversation join failed")
			}
		}
		return report, nil
	}
}

func (h *ReportHTTP) applyReview(r *http.Request, reportID, actorID int64) (lifecycle.Report, error) {
	var input reviewInput
	if err := decodeJSON(r, &input); err != nil {
		return lifecycle.Report{}, err
	}
	decision := lifecycle.ReviewDecision{Action: input.Action, Explanation: input.Explanation}
	if input.CategoryID != nil {
		categoryID := input.CategoryID.Int64()
		decision.CategoryID = &categoryID
	}
	return h.Machine.Review(r.Context(), reportID, actorID, decision)
}

// Review handles PATCH /api/reports/{id}/review.
func (h *ReportHTTP) Review() http.HandlerFunc {
	return h.transition(lifecycle.OpReview, "Report reviewed", h.reviewer, h.applyReview)
}

func (h *ReportHTTP) Start() http.HandlerFunc {
	return h.transition(lifecycle.OpStart, "Report started", h.staff, h.binding(h.Machine.Start))
}

func (h *ReportHTTP) Finish() http.HandlerFunc {
	return h.transition(lifecycle.OpFinish, "Report resolved", h.staff, plain(h.Machine.Finish))
}

func (h *ReportHTTP) Suspend() http.HandlerFunc {
	return h.transition(lifecycle.OpSuspend, "Report suspended", h.staff, plain(h.Machine.Suspend))
}

func (h *ReportHTTP) Resume() http.HandlerFunc {
	return h.transition(lifecycle.OpResume, "Report resumed", h.staff, h.binding(h.Machine.Resume))
}

// AssignExternal handles PATCH /api/reports/{id}/assign_external.
func (h *ReportHTTP) AssignExternal() http.HandlerFunc {
	return h.transition(lifecycle.OpAssignExternal, "Report handed off to external maintainer", h.internalStaff, plain(h.Machine.AssignToExternalMaintainer))
}

func (h *ReportHTTP) ExternalStart() http.HandlerFunc {
	return h.transition(lifecycle.OpExternalStart, "Report started", h.externalStaff, h.binding(h.Machine.ExternalStart))
}

func (h *ReportHTTP) ExternalFinish() http.HandlerFunc {
	return h.transition(lifecycle.OpExternalFinish, "Report resolved", h.externalStaff, plain(h.Machine.ExternalFinish))
}

func (h *ReportHTTP) ExternalSuspend() http.HandlerFunc {
	return h.transition(lifecycle.OpExternalSusp, "Report suspended", h.externalStaff, plain(h.Machine.ExternalSuspend))
}

func (h *ReportHTTP) ExternalResume() http.HandlerFunc {
	return h.transition(lifecycle.OpExternalResume, "Report resumed", h.externalStaff, h.binding(h.Machine.ExternalResume))
}

// MapView handles GET /api/reports/assigned and /api/reports/suspended.
func (h *ReportHTTP) MapView(status lifecycle.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Guard.RequireBroadRole(caller(r), identity.RoleCitizen); err != nil {
			fail(w, r, err)
			return
		}
		reports, err := h.Reports.ListReports(r.Context(), status)
		if err != nil {
			fail(w, r, apperr.Internal("list reports", err))
			return
		}
		views := make([]mapView, 0, len(reports))
		for _, report := range reports {
			views = append(views, toMapView(report))
		}
		response.Success(w, http.StatusOK, "Reports fetched successfully", views)
	}
}

// OfficeQueue handles GET /api/reports/office.
func (h *ReportHTTP) OfficeQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := caller(r)
		if err := h.Guard.RequireBroadRole(id, identity.RoleStaff); err != nil {
			fail(w, r, err)
			return
		}
		roles, err := h.Guard.OfficeRoles(r.Context(), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		var internal, external []int64
		for _, role := range roles {
			if role.OfficeExternal {
				external = append(external, role.OfficeID)
			} else {
				internal = append(internal, role.OfficeID)
			}
		}
		reports, err := h.Reports.OfficeQueue(r.Context(), internal, external)
		if err != nil {
			fail(w, r, apperr.Internal("office queue", err))
			return
		}
		response.Success(w, http.StatusOK, "Office reports fetched successfully", maskReporters(reports))
	}
}

// Stats handles GET /api/reports/stats.
func (h *ReportHTTP) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Guard.RequireBroadRole(caller(r), identity.RoleAdmin); err != nil {
			fail(w, r, err)
			return
		}
		counts, err := h.Reports.StatusCounts(r.Context())
		if err != nil {
			fail(w, r, apperr.Internal("count reports", err))
			return
		}
		var total int64
		for _, n := range counts {
			total += n
		}
		completionRate := 0.0
		if total > 0 {
			completionRate = float64(counts[lifecycle.StatusResolved]) / float64(total) * 100
		}
		response.Success(w, http.StatusOK, "Analytics data retrieved", map[string]any{
			"total":          total,
			"byStatus":       counts,
			"completionRate": completionRate,
		})
	}
}

// Categories handles GET /api/categories.
func (h *ReportHTTP) Categories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Guard.RequireBroadRole(caller(r), identity.RoleCitizen, identity.RoleStaff, identity.RoleAdmin); err != nil {
			fail(w, r, err)
			return
		}
		categories, err := h.Reports.Categories(r.Context())
		if err != nil {
			fail(w, r, apperr.Internal("list categories", err))
			return
		}
		response.Success(w, http.StatusOK, "Categories fetched successfully", categories)
	}
}
