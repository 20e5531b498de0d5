// Package licensecheck decides whether an audiobook manifest may be played.
//
// A license check runs a list of independent checks against a parsed manifest. Each check returns a Verdict:
//   - Succeeded: the check ran and passed
//   - Failed: the check ran and the license must not be used
//   - NotApplicable: the check could not be performed (missing data, or a dependency that was not available)
//
// The Orchestrator collects the verdicts into a Result. The license is accepted unless at least one
// verdict is Failed, so a manifest with no protection data at all is accepted.
//
// Three checks are provided:
//   - SignatureCheck verifies the manifest signature against the issuer's published JWK set
//   - RightsCheck verifies the current time is inside the rights window
//   - StatusCheck fetches the LCP license status document and maps its status
//
// Checks never return errors and never panic outward: every failure is expressed as a verdict.
// Progress is reported through an events.Sink.
package licensecheck
