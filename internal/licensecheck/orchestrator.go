package licensecheck

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

// Check is a single license check.
//
// Execute must not retain the manifest or the sink after it returns.
// Implementations are expected to express every failure as a verdict.
type Check interface {
	// Name is the short name reported in verdicts and events, e.g. "FeedbooksRightsCheck".
	Name() string

	Execute(ctx context.Context, m *manifest.Manifest, emit events.Sink) Verdict
}

// Recorder receives one observation per verdict.
type Recorder interface {
	ObserveVerdict(check string, result string, duration time.Duration)
}

// Orchestrator runs an ordered list of checks against a manifest.
type Orchestrator struct {
	checks   []Check
	logger   *slog.Logger
	recorder Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records every verdict to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// NewOrchestrator creates an Orchestrator for checks. A nil logger uses slog.Default().
func NewOrchestrator(logger *slog.Logger, checks []Check, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		checks: checks,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Checks returns the names of the configured checks, in order.
func (o *Orchestrator) Checks() []string {
	names := make([]string, len(o.checks))
	for i, c := range o.checks {
		names[i] = c.Name()
	}
	return names
}

// Run executes the checks one after another.
func (o *Orchestrator) Run(ctx context.Context, m *manifest.Manifest, emit events.Sink) Result {
	result := Result{
		RunID:    uuid.New(),
		Verdicts: make([]Verdict, len(o.checks)),
	}

	for i, check := range o.checks {
		result.Verdicts[i] = o.execute(ctx, result.RunID, check, m, emit)
	}

	o.logResult(result, m)
	return result
}

// RunParallel executes each check on its own goroutine and waits for all of them.
// Verdicts are reported in check order, as for Run.
//
// emit is called from several goroutines; the sinks in package events are safe for this.
func (o *Orchestrator) RunParallel(ctx context.Context, m *manifest.Manifest, emit events.Sink) Result {
	result := Result{
		RunID:    uuid.New(),
		Verdicts: make([]Verdict, len(o.checks)),
	}

	// checks never return errors, the group is only used to join
	var g errgroup.Group
	for i, check := range o.checks {
		g.Go(func() error {
			result.Verdicts[i] = o.execute(ctx, result.RunID, check, m, emit)
			return nil
		})
	}
	_ = g.Wait()

	o.logResult(result, m)
	return result
}

func (o *Orchestrator) execute(ctx context.Context, runID uuid.UUID, check Check, m *manifest.Manifest, emit events.Sink) (verdict Verdict) {
	name := check.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("Check raised an unexpected error: %v", r)
			o.logger.Error("license check panicked",
				slog.String("run_id", runID.String()),
				slog.String("check", name),
				slog.Any("panic", r))
			emit.Emit(name, "Check failed: "+message)
			verdict = Verdict{Kind: Failed, ShortName: name, Message: message}
		}

		// checks may leave ShortName empty
		if verdict.ShortName == "" {
			verdict.ShortName = name
		}

		duration := time.Since(start)
		if o.recorder != nil {
			o.recorder.ObserveVerdict(name, verdict.Kind.String(), duration)
		}

		o.logger.Debug("license check completed",
			slog.String("run_id", runID.String()),
			slog.String("check", name),
			slog.String("result", verdict.Kind.String()),
			slog.String("message", verdict.Message),
			slog.Duration("duration", duration))
	}()

	return check.Execute(ctx, m, emit)
}

func (o *Orchestrator) logResult(result Result, m *manifest.Manifest) {
	attrs := []any{
		slog.String("run_id", result.RunID.String()),
		slog.Int("checks", len(result.Verdicts)),
		slog.Bool("succeeded", result.Succeeded()),
	}
	if m != nil && m.Identifier != "" {
		attrs = append(attrs, slog.String("manifest_id", m.Identifier))
	}

	if !result.Succeeded() {
		failures := make([]string, 0)
		for _, v := range result.Failures() {
			failures = append(failures, v.String())
		}
		attrs = append(attrs, slog.Any("failures", failures))
		o.logger.Warn("license check rejected manifest", attrs...)
		return
	}
	o.logger.Info("license check passed", attrs...)
}
