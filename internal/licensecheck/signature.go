package licensecheck

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/issuers"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

const SignatureCheckName = "FeedbooksSignatureCheck"

// IssuerLookup resolves a signature issuer to the URL of its JWK set.
type IssuerLookup interface {
	CertificateURL(issuer string) (string, bool)
}

// SignatureCheck verifies the manifest signature extension.
//
// The signature is computed over the canonical (RFC 8785) manifest with the signature extension removed.
// It is accepted if any key in the issuer's key set verifies it, so issuers can rotate keys.
//
// A certificate that cannot be retrieved is a failure: no retry is attempted here.
type SignatureCheck struct {
	issuers IssuerLookup
	keys    issuers.KeySetProvider
	logger  *slog.Logger
}

func NewSignatureCheck(lookup IssuerLookup, keys issuers.KeySetProvider, logger *slog.Logger) *SignatureCheck {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignatureCheck{
		issuers: lookup,
		keys:    keys,
		logger:  logger,
	}
}

func (c *SignatureCheck) Name() string { return SignatureCheckName }

func (c *SignatureCheck) Execute(ctx context.Context, m *manifest.Manifest, emit events.Sink) Verdict {
	emit.Emit(SignatureCheckName, "Started signature check…")

	signature, ok := m.Signature()
	if !ok || signature == nil {
		const message = "No signature information supplied."
		emit.Emit(SignatureCheckName, "Check is not applicable: "+message)
		return Verdict{Kind: NotApplicable, ShortName: SignatureCheckName, Message: message}
	}

	emit.Emit(SignatureCheckName, "Deserializing manifest bytes…")
	emit.Emit(SignatureCheckName, "Extracting signature from manifest…")
	emit.Emit(SignatureCheckName, "Canonicalizing manifest…")

	canonical, err := manifest.CanonicalBytes(m.OriginalBytes)
	if err != nil {
		// the manifest was parsed from these bytes, so this is not expected
		c.logger.Error("failed to canonicalize manifest", slog.String("error", err.Error()))
		return c.fail(emit, "Manifest could not be canonicalized.")
	}

	emit.Emit(SignatureCheckName, "Checking signature…")
	return c.checkSignature(ctx, canonical, signature, emit)
}

func (c *SignatureCheck) checkSignature(ctx context.Context, canonical []byte, signature *manifest.Signature, emit events.Sink) Verdict {
	certificateURL, ok := c.issuers.CertificateURL(signature.Issuer)
	if !ok {
		return c.fail(emit, fmt.Sprintf("Unknown signature issuer %s.", signature.Issuer))
	}

	emit.Emit(SignatureCheckName, fmt.Sprintf("Retrieving certificate %s...", certificateURL))

	set, err := c.keys.KeySet(ctx, certificateURL)
	if err != nil {
		c.logger.Debug("certificate unavailable",
			slog.String("certificate_url", certificateURL),
			slog.String("error", err.Error()))

		if crypto.ErrorCodeOf(err) == crypto.ErrCodeKeyManagement {
			return c.fail(emit, "Certificate could not be parsed.")
		}
		if code, ok := issuers.StatusCodeOf(err); ok {
			emit.Emit(SignatureCheckName, fmt.Sprintf("Error downloading certificate (%d)", code))
		}
		return c.fail(emit, "Certificate could not be retrieved.")
	}

	keys, err := crypto.PublicKeys(set)
	if err != nil {
		c.logger.Debug("certificate key material rejected", slog.String("error", err.Error()))
		return c.fail(emit, "Certificate could not be parsed.")
	}

	scheme, err := crypto.LookupSignatureScheme(crypto.Algorithm(signature.Algorithm))
	if err != nil {
		return c.fail(emit, fmt.Sprintf("Unsupported signature algorithm %s.", signature.Algorithm))
	}

	usable := crypto.UsableKeys(scheme, keys)
	if len(usable) == 0 {
		c.logger.Debug("certificate has no keys usable with algorithm",
			slog.String("algorithm", signature.Algorithm),
			slog.Int("keys", len(keys)))
		return c.fail(emit, "Certificate could not be parsed.")
	}

	sig, ok := decodeSignatureValue(signature.Value)
	if !ok || !crypto.VerifyWithAnyKey(scheme, usable, canonical, sig) {
		return c.fail(emit, "Signature not verified.")
	}

	const message = "Signature verified."
	emit.Emit(SignatureCheckName, "Check succeeded: "+message)
	return Verdict{Kind: Succeeded, ShortName: SignatureCheckName, Message: message}
}

func (c *SignatureCheck) fail(emit events.Sink, message string) Verdict {
	emit.Emit(SignatureCheckName, "Signature check failed: "+message)
	return Verdict{Kind: Failed, ShortName: SignatureCheckName, Message: message}
}

// decodeSignatureValue accepts standard or URL-safe base64, padded or not.
func decodeSignatureValue(value string) ([]byte, bool) {
	if value == "" {
		return nil, false
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(value); err == nil {
			return b, true
		}
	}
	return nil, false
}
