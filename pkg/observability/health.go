package observability

import (
	"context"
	"encoding/json"
	"net/http"
)

// Health statuses.
const (
	HealthStatusOK          = "ok"
	HealthStatusUnavailable = "unavailable"
)

// ReadyCheck reports whether a subsystem can take work. A nil error means ready.
type ReadyCheck func(ctx context.Context) error

// HealthResponse is the body written by the health and readiness handlers.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HealthHandler answers liveness probes with 200 and the running version.
func HealthHandler(version string) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, HealthResponse{Status: HealthStatusOK, Version: version})
	})
}

// ReadyHandler runs checks in order and answers 503 with the first failure,
// 200 otherwise.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		for _, check := range checks {
			err := check(hr.Context())
			if err != nil {
				writeHealth(rw, http.StatusServiceUnavailable, HealthResponse{
					Status: HealthStatusUnavailable,
					Reason: err.Error(),
				})

				return
			}
		}

		writeHealth(rw, http.StatusOK, HealthResponse{Status: HealthStatusOK})
	})
}

func writeHealth(rw http.ResponseWriter, code int, body HealthResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	// The status code already carries the answer.
	_ = json.NewEncoder(rw).Encode(body) //nolint:errchkjson // best effort body
}
