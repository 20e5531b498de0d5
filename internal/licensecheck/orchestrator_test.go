package licensecheck

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

type recordedVerdict struct {
	check, result string
}

type fakeRecorder struct {
	mu       sync.Mutex
	verdicts []recordedVerdict
}

func (r *fakeRecorder) ObserveVerdict(check, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, recordedVerdict{check, result})
}

func TestOrchestrator(t *testing.T) {
	tests := []struct {
		name          string
		checks        []Check
		wantSucceeded bool
		wantSummary   []string
	}{
		{
			name:          "no checks",
			checks:        nil,
			wantSucceeded: true,
			wantSummary:   []string{},
		},
		{
			name:          "all succeed",
			checks:        []Check{succeeding("A"), succeeding("B")},
			wantSucceeded: true,
			wantSummary:   []string{"A: Succeeded!", "B: Succeeded!"},
		},
		{
			name:          "one fails",
			checks:        []Check{succeeding("A"), succeeding("B"), failing("C"), succeeding("D")},
			wantSucceeded: false,
			wantSummary:   []string{"A: Succeeded!", "B: Succeeded!", "C: Failed!", "D: Succeeded!"},
		},
		{
			name:          "all not applicable",
			checks:        []Check{notApplicable("A"), notApplicable("B"), notApplicable("C"), notApplicable("D")},
			wantSucceeded: true,
			wantSummary:   []string{"A: NotApplicable!", "B: NotApplicable!", "C: NotApplicable!", "D: NotApplicable!"},
		},
		{
			name:          "one crashes",
			checks:        []Check{succeeding("A"), succeeding("B"), panickingCheck{}, succeeding("D")},
			wantSucceeded: false,
			wantSummary: []string{
				"A: Succeeded!",
				"B: Succeeded!",
				"Crashing: Check raised an unexpected error: Crashing!",
				"D: Succeeded!",
			},
		},
	}

	m := mustParse(t, buildManifest(t, nil, nil))

	for _, tt := range tests {
		for _, parallel := range []bool{false, true} {
			name := tt.name
			if parallel {
				name += " parallel"
			}
			t.Run(name, func(t *testing.T) {
				recorder := &fakeRecorder{}
				o := NewOrchestrator(discardLogger(), tt.checks, WithRecorder(recorder))

				var collector events.Collector
				var result Result
				if parallel {
					result = o.RunParallel(context.Background(), m, collector.Sink())
				} else {
					result = o.Run(context.Background(), m, collector.Sink())
				}

				if len(result.Verdicts) != len(tt.checks) {
					t.Fatalf("got %d verdicts, want %d", len(result.Verdicts), len(tt.checks))
				}
				if got := result.Succeeded(); got != tt.wantSucceeded {
					t.Errorf("Succeeded() = %v, want %v", got, tt.wantSucceeded)
				}

				summary := result.Summarize()
				if len(summary) != len(tt.wantSummary) {
					t.Fatalf("Summarize() = %v, want %v", summary, tt.wantSummary)
				}
				for i := range summary {
					if summary[i] != tt.wantSummary[i] {
						t.Errorf("Summarize()[%d] = %q, want %q", i, summary[i], tt.wantSummary[i])
					}
				}

				if len(recorder.verdicts) != len(tt.checks) {
					t.Errorf("recorded %d verdicts, want %d", len(recorder.verdicts), len(tt.checks))
				}
				if result.RunID.String() == "00000000-0000-0000-0000-000000000000" {
					t.Error("RunID not set")
				}
			})
		}
	}
}

func TestOrchestrator_PanicEmitsEvent(t *testing.T) {
	m := mustParse(t, buildManifest(t, nil, nil))
	o := NewOrchestrator(discardLogger(), []Check{panickingCheck{}})

	var collector events.Collector
	result := o.Run(context.Background(), m, collector.Sink())

	if result.Verdicts[0].Kind != Failed {
		t.Fatalf("Kind = %v, want Failed", result.Verdicts[0].Kind)
	}
	if !hasEvent(collector.Events(), "Crashing", "Check failed: Check raised an unexpected error: Crashing!") {
		t.Errorf("missing panic event: %v", collector.Events())
	}
}

func TestOrchestrator_NilSink(t *testing.T) {
	m := mustParse(t, buildManifest(t, nil, nil))
	o := NewOrchestrator(nil, []Check{succeeding("A"), panickingCheck{}})

	// must not panic
	result := o.Run(context.Background(), m, nil)
	if result.Succeeded() {
		t.Error("expected failure from panicking check")
	}
}

func TestOrchestrator_ParallelOverlaps(t *testing.T) {
	m := mustParse(t, buildManifest(t, nil, nil))

	// each check waits for the other to start; a sequential run would deadlock
	started := make(chan struct{}, 2)
	barrier := func(name string) Check {
		return funcCheck{name: name, fn: func() Verdict {
			started <- struct{}{}
			deadline := time.After(5 * time.Second)
			for len(started) < 2 {
				select {
				case <-deadline:
					return Verdict{Kind: Failed, ShortName: name, Message: "not run in parallel"}
				case <-time.After(time.Millisecond):
				}
			}
			return Verdict{Kind: Succeeded, ShortName: name, Message: "ok"}
		}}
	}

	o := NewOrchestrator(discardLogger(), []Check{barrier("A"), barrier("B")})
	result := o.RunParallel(context.Background(), m, nil)
	if !result.Succeeded() {
		t.Errorf("checks did not overlap: %v", result.Summarize())
	}
	if o.Checks()[0] != "A" || o.Checks()[1] != "B" {
		t.Errorf("Checks() = %v", o.Checks())
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	m := mustParse(t, buildManifest(t, nil, nil))
	o := NewOrchestrator(discardLogger(), []Check{succeeding("A"), failing("B")})
	result := o.Run(context.Background(), m, nil)

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded struct {
		RunID     string    `json:"run_id"`
		Succeeded bool      `json:"succeeded"`
		Summary   []string  `json:"summary"`
		Verdicts  []Verdict `json:"verdicts"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	if decoded.RunID != result.RunID.String() {
		t.Errorf("run_id = %q, want %q", decoded.RunID, result.RunID)
	}
	if decoded.Succeeded {
		t.Error("succeeded = true, want false")
	}
	if len(decoded.Verdicts) != 2 || decoded.Verdicts[1].Kind != Failed || decoded.Verdicts[1].ShortName != "B" {
		t.Errorf("verdicts = %+v", decoded.Verdicts)
	}
	if !strings.Contains(string(data), `"result":"failed"`) {
		t.Errorf("verdict kind not encoded as text: %s", data)
	}
	if len(decoded.Summary) != 2 || decoded.Summary[0] != "A: Succeeded!" {
		t.Errorf("summary = %v", decoded.Summary)
	}
}

func TestVerdictKind_Text(t *testing.T) {
	for _, kind := range []VerdictKind{NotApplicable, Succeeded, Failed} {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", kind, err)
		}
		var decoded VerdictKind
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if decoded != kind {
			t.Errorf("UnmarshalText(%q) = %v, want %v", text, decoded, kind)
		}
	}

	var v Verdict
	if err := json.Unmarshal([]byte(`{"result":"passed","check":"A"}`), &v); err == nil {
		t.Error("json.Unmarshal() accepted an unknown verdict")
	}
}

type funcCheck struct {
	name string
	fn   func() Verdict
}

func (c funcCheck) Name() string { return c.name }

func (c funcCheck) Execute(_ context.Context, _ *manifest.Manifest, _ events.Sink) Verdict {
	return c.fn()
}
