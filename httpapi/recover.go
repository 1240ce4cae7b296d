package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"bot-gateway/middleware/correlation"
)

// Recover turns a handler panic into a 500 INTERNAL_ERROR response. The panic
// value and stack are logged with the trace id; they reach the client only
// when detail is true.
func Recover(detail bool) func(http.Handler) http.Handler {
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

				stack := debug.Stack()
				zerolog.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", stack).
					Str("trace_id", correlation.FromContext(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("unhandled panic")

				e := &APIError{
					Status:  http.StatusInternalServerError,
					Code:    CodeInternal,
					Message: "An unexpected error occurred. Please contact support with the trace ID.",
				}
				if detail {
					e.Message = fmt.Sprint(rec)
					e.Details = []string{string(stack)}
				}
				writeAPIError(w, r, e)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
