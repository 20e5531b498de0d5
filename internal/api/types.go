package api

import (
	"github.com/google/uuid"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/licensecheck"
)

// LicenseCheckResponse is returned by POST /v1/license-checks.
type LicenseCheckResponse struct {
	RunID     uuid.UUID              `json:"run_id"`
	Succeeded bool                   `json:"succeeded"`
	Verdicts  []licensecheck.Verdict `json:"verdicts"`
	Summary   []string               `json:"summary"`
	Events    []events.Event         `json:"events"`
}

// NewLicenseCheckResponse builds the response for a completed run.
func NewLicenseCheckResponse(result licensecheck.Result, evts []events.Event) LicenseCheckResponse {
	verdicts := result.Verdicts
	if verdicts == nil {
		verdicts = []licensecheck.Verdict{}
	}
	if evts == nil {
		evts = []events.Event{}
	}
	return LicenseCheckResponse{
		RunID:     result.RunID,
		Succeeded: result.Succeeded(),
		Verdicts:  verdicts,
		Summary:   result.Summarize(),
		Events:    evts,
	}
}

// IssuerResponse is one entry of GET /v1/issuers.
type IssuerResponse struct {
	Issuer         string `json:"issuer"`
	CertificateURL string `json:"certificate_url"`
}
