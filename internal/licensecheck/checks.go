package licensecheck

import (
	"log/slog"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/issuers"
	"github.com/information-sharing-networks/audiobook-license/app/internal/lcp"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

// Dependencies are the collaborators of the standard checks.
type Dependencies struct {
	Issuers IssuerLookup
	KeySets issuers.KeySetProvider
	Fetcher transport.Fetcher

	// StatusParser defaults to lcp.JSONStatusParser
	StatusParser lcp.StatusParser

	// Now defaults to time.Now
	Now func() time.Time

	Logger *slog.Logger
}

// StandardChecks returns the signature, rights and status checks, in that order.
func StandardChecks(deps Dependencies) []Check {
	return []Check{
		NewSignatureCheck(deps.Issuers, deps.KeySets, deps.Logger),
		NewRightsCheck(deps.Now),
		NewStatusCheck(deps.Fetcher, deps.StatusParser, deps.Logger),
	}
}
