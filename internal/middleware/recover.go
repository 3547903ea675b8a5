package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Recover turns a panicking handler into a 500 response, logging the panic
// and reporting it to Sentry.
func Recover(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("handler panicked")
				if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
					hub.Recover(rec)
				} else {
					sentry.CurrentHub().Recover(rec)
				}
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
