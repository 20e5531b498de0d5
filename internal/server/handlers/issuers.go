package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/information-sharing-networks/audiobook-license/app/internal/api"
	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/issuers"
)

// HandleListIssuers returns the trusted signature issuers and their certificate URLs.
//
//	GET /v1/issuers
func HandleListIssuers(registry *issuers.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := registry.Issuers()
		response := make([]api.IssuerResponse, 0, len(list))
		for _, issuer := range list {
			response = append(response, api.IssuerResponse{
				Issuer:         issuer.Name,
				CertificateURL: issuer.CertificateURL,
			})
		}
		api.RespondWithJSONPayload(w, http.StatusOK, response)
	}
}

// HandleIssuerKeySet returns the JWK set currently used to verify signatures from an issuer.
//
//	GET /v1/issuers/keys?issuer=<issuer uri>
//
// The set is served from the key set provider, so with the cached provider this shows what the
// service will verify against, not what the issuer is publishing right now.
func HandleIssuerKeySet(registry *issuers.Registry, keySets issuers.KeySetProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := r.URL.Query().Get("issuer")
		if issuer == "" {
			api.RespondWithErrorResponse(w, r, api.NewMalformedRequestError("issuer parameter is required"))
			return
		}

		certificateURL, ok := registry.CertificateURL(issuer)
		if !ok {
			api.RespondWithErrorResponse(w, r, api.NewNotFoundError("unknown issuer "+issuer))
			return
		}

		set, err := keySets.KeySet(r.Context(), certificateURL)
		if err != nil {
			if crypto.ErrorCodeOf(err) == crypto.ErrCodeCertificate {
				api.RespondWithErrorResponse(w, r, api.WrapUpstreamError(err, "Certificate could not be retrieved."))
				return
			}
			api.RespondWithErrorResponse(w, r, api.WrapUpstreamError(err, "Certificate could not be parsed."))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		if err := json.NewEncoder(w).Encode(set); err != nil {
			http.Error(w, "Failed to encode JWK set", http.StatusInternalServerError)
			return
		}
	}
}
