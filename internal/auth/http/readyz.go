package http

import (
	"net/http"
	"time"

	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/pkg/httpx"
)

// ReadyzHandler is the readiness probe: it checks the database before
// reporting the service fit to receive traffic.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{Database: "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, healthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
