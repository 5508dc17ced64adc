package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"participium/pkg/apperr"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Name    string      `json:"name,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	resp := APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
	JSON(w, statusCode, resp)
}

func Error(w http.ResponseWriter, statusCode int, message string, errDetail string) {
	resp := APIResponse{
		Status:  "error",
		Name:    nameFor(statusCode),
		Message: message,
		Error:   errDetail,
	}
	JSON(w, statusCode, resp)
}

// Err writes err using the status and name of its apperr kind. Internal
// errors and log-only reasons never reach the body.
func Err(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	message := "Internal server error"
	if kind != apperr.KindInternal {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
	}
	JSON(w, kind.Status(), APIResponse{
		Status:  "error",
		Name:    kind.Name(),
		Message: message,
	})
}

func nameFor(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return apperr.KindInvalidArgument.Name()
	case http.StatusUnauthorized:
		return apperr.KindUnauthenticated.Name()
	case http.StatusForbidden:
		return apperr.KindForbidden.Name()
	case http.StatusNotFound:
		return apperr.KindNotFound.Name()
	case http.StatusConflict:
		return apperr.KindConflict.Name()
	case http.StatusInternalServerError:
		return apperr.KindInternal.Name()
	default:
		return ""
	}
}
