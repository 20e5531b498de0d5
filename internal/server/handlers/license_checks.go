package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/information-sharing-networks/audiobook-license/app/internal/api"
	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/licensecheck"
	"github.com/information-sharing-networks/audiobook-license/app/internal/logger"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

// HandleLicenseChecks runs the license checks against the manifest in the request body.
//
//	POST /v1/license-checks[?parallel=true]
//
// The response is 200 whether or not the manifest passes; see succeeded in the body.
// A body that is not a manifest gets a 400.
func HandleLicenseChecks(orchestrator *licensecheck.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqLogger := logger.ContextRequestLogger(ctx)

		parallel := false
		if v := r.URL.Query().Get("parallel"); v != "" {
			p, err := strconv.ParseBool(v)
			if err != nil {
				api.RespondWithErrorResponse(w, r, api.NewMalformedRequestError(fmt.Sprintf("invalid parallel parameter %q", v)))
				return
			}
			parallel = p
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				api.RespondWithErrorResponse(w, r, api.NewRequestTooLargeError(
					fmt.Sprintf("Request body exceeds maximum allowed size (%d bytes)", maxBytesErr.Limit)))
				return
			}
			api.RespondWithErrorResponse(w, r, api.WrapMalformedRequestError(err, "failed to read request body"))
			return
		}

		m, err := manifest.Parse(body)
		if err != nil {
			api.RespondWithErrorResponse(w, r, api.WrapInvalidManifestError(err, "request body is not a valid manifest"))
			return
		}

		var collector events.Collector
		sink := events.Tee(collector.Sink(), events.LogSink(reqLogger))

		var result licensecheck.Result
		if parallel {
			result = orchestrator.RunParallel(ctx, m, sink)
		} else {
			result = orchestrator.Run(ctx, m, sink)
		}

		logger.ContextWithLogAttrs(ctx,
			slog.String("run_id", result.RunID.String()),
			slog.Bool("succeeded", result.Succeeded()),
			slog.Bool("parallel", parallel),
		)

		api.RespondWithJSONPayload(w, http.StatusOK, api.NewLicenseCheckResponse(result, collector.Events()))
	}
}
