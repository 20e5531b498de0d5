package licensecheck

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/lcp"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

const StatusCheckName = "FeedbooksStatusCheck"

// StatusCheck fetches the LCP license status document linked from the manifest.
//
// ready and active licenses succeed; revoked, returned, cancelled and expired licenses fail.
// A status server that cannot be reached, or that returns an unparseable document, makes the check
// not applicable rather than failed: an outage of the status server does not invalidate a license.
type StatusCheck struct {
	fetcher transport.Fetcher
	parser  lcp.StatusParser
	logger  *slog.Logger
}

// NewStatusCheck creates a StatusCheck. A nil parser uses lcp.JSONStatusParser.
func NewStatusCheck(fetcher transport.Fetcher, parser lcp.StatusParser, logger *slog.Logger) *StatusCheck {
	if parser == nil {
		parser = lcp.JSONStatusParser{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCheck{
		fetcher: fetcher,
		parser:  parser,
		logger:  logger,
	}
}

func (c *StatusCheck) Name() string { return StatusCheckName }

// isStatusLink matches links with a "license" relation and the license status media type.
func isStatusLink(link manifest.Link) bool {
	return link.HasRel("license") && link.Type == lcp.StatusContentType
}

func (c *StatusCheck) Execute(ctx context.Context, m *manifest.Manifest, emit events.Sink) Verdict {
	emit.Emit(StatusCheckName, "Started status check…")

	var link *manifest.Link
	for i := range m.Links {
		if isStatusLink(m.Links[i]) {
			link = &m.Links[i]
			break
		}
	}

	switch {
	case link == nil || (!link.Templated && link.Href == ""):
		return c.notApplicable(emit, "No license link.")
	case link.Templated:
		return c.notApplicable(emit, "Templated links are not supported.")
	}

	return c.checkLink(ctx, link.Href, emit)
}

func (c *StatusCheck) checkLink(ctx context.Context, target string, emit events.Sink) Verdict {
	emit.Emit(StatusCheckName, fmt.Sprintf("Fetching license document %s…", target))

	resp, err := c.fetcher.Fetch(ctx, &transport.Request{
		URL:    target,
		Accept: lcp.StatusContentType,
	})
	if err != nil {
		c.logger.Debug("status document request failed",
			slog.String("url", target),
			slog.String("error", err.Error()))
		return c.notApplicable(emit, "The server failed to produce a license status document.")
	}

	c.logger.Debug("status document response",
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(resp.Body)))

	if !resp.OK() {
		return c.notApplicable(emit, "The server failed to produce a license status document.")
	}

	doc, parseErrors := c.parser.Parse(target, resp.Body)
	if len(parseErrors) > 0 || doc == nil {
		for _, pe := range parseErrors {
			c.logger.Error("status document parse error",
				slog.String("source", pe.Source),
				slog.Int("line", pe.Line),
				slog.Int("column", pe.Column),
				slog.String("message", pe.Message))
			emit.Emit(StatusCheckName, fmt.Sprintf("License parse error: %s: %d:%d: %s", pe.Source, pe.Line, pe.Column, pe.Message))
		}
		return c.notApplicable(emit, "The server produced an unparseable license status document.")
	}

	c.logger.Debug("license status", slog.String("status", string(doc.Status)))

	message := fmt.Sprintf("License status is %s", doc.Status)
	switch doc.Status {
	case lcp.StatusReady, lcp.StatusActive:
		emit.Emit(StatusCheckName, "Check succeeded: "+message)
		return Verdict{Kind: Succeeded, ShortName: StatusCheckName, Message: message}
	case lcp.StatusRevoked, lcp.StatusReturned, lcp.StatusCancelled, lcp.StatusExpired:
		emit.Emit(StatusCheckName, "Check failed: "+message)
		return Verdict{Kind: Failed, ShortName: StatusCheckName, Message: message}
	default:
		// a parser returning a status outside the enumeration is broken
		c.logger.Error("status parser returned an unknown status", slog.String("status", string(doc.Status)))
		return c.notApplicable(emit, "The server produced an unparseable license status document.")
	}
}

func (c *StatusCheck) notApplicable(emit events.Sink, message string) Verdict {
	emit.Emit(StatusCheckName, "Check is not applicable: "+message)
	return Verdict{Kind: NotApplicable, ShortName: StatusCheckName, Message: message}
}
