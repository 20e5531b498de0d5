// Package services builds the external integrations shared by the server and the CLI
// (the outbound HTTP fetcher, the issuer registry and the issuer key set provider)
// from configuration, and assembles the license check orchestrator and fulfillment workflow on top of them.
package services
