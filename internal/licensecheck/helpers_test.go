package licensecheck

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParse(t *testing.T, data []byte) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse(data)
	if err != nil {
		t.Fatalf("manifest.Parse() error = %v", err)
	}
	return m
}

// buildManifest returns a manifest document with the given metadata extensions and links.
func buildManifest(t *testing.T, extensions map[string]any, links []map[string]any) []byte {
	t.Helper()

	metadata := map[string]any{
		"@type":      "http://schema.org/Audiobook",
		"identifier": "urn:isbn:9780000000001",
		"title":      "Gleams of Sunshine",
		"language":   "en",
		"duration":   1371.0,
	}
	for k, v := range extensions {
		metadata[k] = v
	}

	doc := map[string]any{
		"@context": "https://readium.org/webpub-manifest/context.jsonld",
		"metadata": metadata,
		"readingOrder": []map[string]any{
			{"href": "chapter1.mp3", "type": "audio/mpeg", "duration": 1371},
		},
	}
	if links != nil {
		doc["links"] = links
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	return data
}

type fixedCheck struct {
	name    string
	verdict Verdict
}

func (c fixedCheck) Name() string { return c.name }

func (c fixedCheck) Execute(_ context.Context, _ *manifest.Manifest, emit events.Sink) Verdict {
	emit.Emit(c.name, "running")
	return c.verdict
}

type panickingCheck struct{}

func (panickingCheck) Name() string { return "Crashing" }

func (panickingCheck) Execute(context.Context, *manifest.Manifest, events.Sink) Verdict {
	panic("Crashing!")
}

func succeeding(name string) Check {
	return fixedCheck{name: name, verdict: Verdict{Kind: Succeeded, ShortName: name, Message: "Succeeded!"}}
}

func failing(name string) Check {
	return fixedCheck{name: name, verdict: Verdict{Kind: Failed, ShortName: name, Message: "Failed!"}}
}

func notApplicable(name string) Check {
	return fixedCheck{name: name, verdict: Verdict{Kind: NotApplicable, ShortName: name, Message: "NotApplicable!"}}
}

func hasEvent(evs []events.Event, source, message string) bool {
	for _, e := range evs {
		if e.Source == source && e.Message == message {
			return true
		}
	}
	return false
}
