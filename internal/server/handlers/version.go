package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/information-sharing-networks/audiobook-license/app/internal/version"
)

// HandleVersion returns the version and build information for the service
//
//	GET /version
func HandleVersion(info version.Info) http.HandlerFunc {
	// the response does not change, build it once
	response := VersionResponse{
		Version:   info.Version,
		BuildTime: info.BuildDate,
		GitCommit: info.GitCommit,
		Service:   "licensecheck-server",
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode version", http.StatusInternalServerError)
			return
		}
	}
}

type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	Service   string `json:"service"`
}
