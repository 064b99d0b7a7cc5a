package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rhuss/umfrage/pkg/api"
)

// Recovery turns a panicking handler into a 500 response and keeps the
// server running. The panic value and stack are logged, not returned.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slog.ErrorContext(r.Context(), "handler panicked",
					"request_id", RequestIDFromContext(r.Context()),
					"panic", fmt.Sprint(v),
					"stack", string(debug.Stack()),
				)
				if rec.status == 0 {
					WriteAPIError(rec, api.NewServerError("internal server error"))
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
