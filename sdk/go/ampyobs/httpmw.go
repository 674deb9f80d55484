package ampyobs

import (
	"net/http"
	"strconv"
	"time"
)

// HTTPServerMiddleware logs every request and counts it by status class.
// Trace extraction is left to the handlers, which read the headers themselves.
func HTTPServerMiddleware(hdl *Handle) func(next http.Handler) http.Handler {
	reqs := hdl.Metrics.httpRequests()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(ww, r)

			reqs.WithLabelValues(r.Method, statusClass(ww.status)).Inc()

			hdl.Logger.Info(r.Context(), "http.request",
				F("method", r.Method),
				F("path", r.URL.Path),
				F("status", ww.status),
				F("latency_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
