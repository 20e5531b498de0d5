package handlers

import (
	"net/http"
)

// HandleHealth responds 200 OK while the service is alive.
//
//	GET /health/live
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
