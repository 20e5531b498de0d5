package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/licensecheck"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
	"github.com/information-sharing-networks/audiobook-license/app/internal/services"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the license checks against a manifest",
	Long: `Run the signature, rights and status checks against an audiobook manifest and print one line per check.

The command exits non-zero if any check fails. Checks that do not apply to the manifest
(e.g. an unsigned manifest) are reported but do not fail the run.

Example:
  licensecheck check --manifest ./manifest.json
  licensecheck check --manifest ./manifest.json --now 2024-01-01T00:00:00Z --parallel --json`,
	RunE: runCheck,
}

var (
	checkManifestPath string
	checkNow          string
	checkParallel     bool
	checkJSON         bool
	checkVerbose      bool
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkManifestPath, "manifest", "", "Path to the manifest JSON file (required)")
	checkCmd.Flags().StringVar(&checkNow, "now", "", "Evaluate the rights window at this RFC 3339 time instead of the current time")
	checkCmd.Flags().BoolVar(&checkParallel, "parallel", false, "Run the checks concurrently")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the result as JSON")
	checkCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "Print progress events")
	_ = checkCmd.MarkFlagRequired("manifest")
}

func runCheck(cmd *cobra.Command, args []string) error {
	now, err := parseClock(checkNow)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(checkManifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return err
	}

	svc, err := services.NewServices(cmd.Context(), cfg, appLogger, nil)
	if err != nil {
		return err
	}

	result := runChecks(cmd, svc.Orchestrator(now), m, checkParallel, checkVerbose)

	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		printResult(cmd, result)
	}

	if !result.Succeeded() {
		return errRejected
	}
	return nil
}

// runChecks runs the orchestrator, printing events to stderr when verbose.
func runChecks(cmd *cobra.Command, orchestrator *licensecheck.Orchestrator, m *manifest.Manifest, parallel, verbose bool) licensecheck.Result {
	sink := events.LogSink(appLogger)
	if verbose {
		sink = events.Tee(sink, printEvents(cmd))
	}

	if parallel {
		return orchestrator.RunParallel(cmd.Context(), m, sink)
	}
	return orchestrator.Run(cmd.Context(), m, sink)
}

func printResult(cmd *cobra.Command, result licensecheck.Result) {
	out := cmd.OutOrStdout()
	for _, v := range result.Verdicts {
		fmt.Fprintf(out, "%-14s %s\n", "["+v.Kind.String()+"]", v.String())
	}
	if result.Succeeded() {
		fmt.Fprintln(out, "✓ license checks passed")
	} else {
		fmt.Fprintln(out, "✗ license checks failed")
	}
}

// printEvents returns a sink that writes events to stderr.
func printEvents(cmd *cobra.Command) events.Sink {
	var mu sync.Mutex
	w := cmd.ErrOrStderr()
	return func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "  %s: %s\n", e.Source, e.Message)
	}
}

// parseClock returns a fixed clock for an RFC 3339 value, or nil (the real clock) for "".
func parseClock(value string) (func() time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --now value %q: %w", value, err)
	}
	return func() time.Time { return t }, nil
}
