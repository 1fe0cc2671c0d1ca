package middleware

import (
	"log"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// healthPaths are polled by orchestrators and scrapers. Successful hits are
// not logged.
var healthPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// statusOf returns the status the handler wrote, 200 when it only wrote a
// body or nothing at all.
func statusOf(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

// Logging logs one line per request with chi's request ID, when the
// RequestID middleware runs first.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := statusOf(ww)
		if healthPaths[r.URL.Path] && status < http.StatusBadRequest {
			return
		}

		reqID := chimw.GetReqID(r.Context())
		if reqID == "" {
			reqID = "-"
		}

		log.Printf("%s %s %d %dB %s req=%s",
			r.Method, r.URL.Path, status, ww.BytesWritten(),
			time.Since(start).Round(time.Microsecond), reqID)
	})
}
