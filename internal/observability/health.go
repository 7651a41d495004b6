package observability

import (
	"context"
	"encoding/json"
	"net/http"
)

// ReadyCheck probes one subsystem. A nil return means the subsystem can
// serve traffic.
type ReadyCheck func(ctx context.Context) error

type healthStatus struct {
	Status string `json:"status"`
}

// HealthHandler serves liveness at /healthz. The process answering is the
// whole check, so it always reports ok.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeStatus(rw, http.StatusOK, "ok")
	})
}

// ReadyHandler serves readiness at /readyz, running every check in order
// and reporting unavailable on the first failure.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		for _, check := range checks {
			if err := check(hr.Context()); err != nil {
				writeStatus(rw, http.StatusServiceUnavailable, "unavailable")

				return
			}
		}

		writeStatus(rw, http.StatusOK, "ok")
	})
}

func writeStatus(rw http.ResponseWriter, code int, status string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	_ = json.NewEncoder(rw).Encode(healthStatus{Status: status})
}
