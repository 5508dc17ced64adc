package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/identity"
	"participium/pkg/lifecycle"
	"participium/pkg/response"
	"participium/pkg/storage"
)

const (
	minPhotos      = 1
	maxPhotos      = 3
	maxUploadBytes = maxPhotos*storage.MaxPhotoSize + 1<<20
)

type createInput struct {
	Title       string
	Description string
	Latitude    float64
	Longitude   float64
	CategoryID  int64
	Anonymous   bool
	Photos      []*multipart.FileHeader
}

func parseCreateInput(r *http.Request) (createInput, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return createInput{}, apperr.InvalidArgument("invalid multipart payload")
	}
	in := createInput{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Photos:      r.MultipartForm.File["photos"],
	}
	if in.Title == "" || in.Description == "" {
		return createInput{}, apperr.InvalidArgument("title and description are required")
	}

	var err error
	if in.Latitude, err = strconv.ParseFloat(r.FormValue("latitude"), 64); err != nil || in.Latitude < -90 || in.Latitude > 90 {
		return createInput{}, apperr.InvalidArgument("latitude must be between -90 and 90")
	}
	if in.Longitude, err = strconv.ParseFloat(r.FormValue("longitude"), 64); err != nil || in.Longitude < -180 || in.Longitude > 180 {
		return createInput{}, apperr.InvalidArgument("longitude must be between -180 and 180")
	}
	if in.CategoryID, err = identity.ParseID(r.FormValue("categoryId")); err != nil || in.CategoryID <= 0 {
		return createInput{}, apperr.InvalidArgument("categoryId is required")
	}
	if v := r.FormValue("anonymous"); v != "" {
		if in.Anonymous, err = strconv.ParseBool(v); err != nil {
			return createInput{}, apperr.InvalidArgument("anonymous must be a boolean")
		}
	}

	if len(in.Photos) < minPhotos || len(in.Photos) > maxPhotos {
		return createInput{}, apperr.InvalidArgument("a report needs between 1 and 3 photos")
	}
	for _, fh := range in.Photos {
		if err := storage.ValidatePhoto(fh.Header.Get("Content-Type"), fh.Size); err != nil {
			return createInput{}, apperr.InvalidArgument(err.Error())
		}
	}
	return in, nil
}

// Create handles POST /api/reports. The report starts pending, gets a
// conversation with its reporter and is announced to the owning office.
func (h *ReportHTTP) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := caller(r)
		if err := h.Guard.RequireBroadRole(id, identity.RoleCitizen); err != nil {
			fail(w, r, err)
			return
		}
		in, err := parseCreateInput(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		category, err := h.Reports.GetCategory(r.Context(), in.CategoryID)
		if errors.Is(err, lifecycle.ErrCategoryNotFound) {
			fail(w, r, apperr.InvalidArgument("unknown category"))
			return
		}
		if err != nil {
			fail(w, r, apperr.Internal("load category", err))
			return
		}

		keys, err := h.uploadPhotos(r.Context(), id.CallerID, in.Photos)
		if err != nil {
			fail(w, r, err)
			return
		}

		log := zerolog.Ctx(r.Context())
		now := time.Now().UTC()
		reporter := id.CallerID
		report, err := h.Reports.CreateReport(r.Context(), lifecycle.Report{
			Title:       in.Title,
			Description: in.Description,
			Latitude:    in.Latitude,
			Longitude:   in.Longitude,
			CategoryID:  category.ID,
			Status:      lifecycle.StatusPending,
			ReporterID:  &reporter,
			Anonymous:   in.Anonymous,
			Photos:      keys,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			h.removePhotos(r.Context(), keys)
			fail(w, r, apperr.Internal("save report", err))
			return
		}
		log.Info().Int64("report_id", report.ID).Bool("anonymous", report.Anonymous).Msg("report saved")

		if h.Messaging != nil {
			if _, err := h.Messaging.OpenForReport(r.Context(), report.ID, reporter); err != nil {
				log.Warn().Err(err).Int64("report_id", report.ID).Msg("report saved but conversation creation failed")
			}
		}
		if h.Events != nil {
			if err := h.Events.PublishCreated(r.Context(), report, category.OfficeID); err != nil {
				log.Warn().Err(err).Int64("report_id", report.ID).Msg("report saved but failed to publish event")
			}
		}

		response.Success(w, http.StatusCreated, "Report created successfully", maskReporter(report))
	}
}

func (h *ReportHTTP) uploadPhotos(ctx context.Context, userID int64, photos []*multipart.FileHeader) ([]string, error) {
	if h.Photos == nil {
		return nil, apperr.Internal("upload photos", errors.New("photo storage not configured"))
	}
	keys := make([]string, 0, len(photos))
	for _, fh := range photos {
		f, err := fh.Open()
		if err != nil {
			h.removePhotos(ctx, keys)
			return nil, apperr.InvalidArgument("unreadable photo")
		}
		key, err := h.Photos.Upload(ctx, userID, fh.Filename, fh.Header.Get("Content-Type"), f, fh.Size)
		f.Close()
		if err != nil {
			h.removePhotos(ctx, keys)
			return nil, apperr.Internal("upload photo", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (h *ReportHTTP) removePhotos(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := h.Photos.Delete(ctx, key); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to remove orphaned photo")
		}
	}
}
