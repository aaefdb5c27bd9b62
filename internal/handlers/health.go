package handlers

import "net/http"

// Health handles GET and HEAD /health. It reports process liveness only;
// backend connectivity was verified once at startup.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("OK"))
	}
}
