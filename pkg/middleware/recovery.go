package middleware

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/response"
)

func Recoverer(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					l.Error().Str("trace_id", GetTraceID(r)).Interface("panic", rec).Msg("panic")
					response.Err(w, apperr.Internal("panic", fmt.Errorf("%v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
