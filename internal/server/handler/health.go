package handler

import "net/http"

// Health answers liveness probes.
// GET /healthz
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "atomicnexus"})
}
