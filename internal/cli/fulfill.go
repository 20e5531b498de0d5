package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/fulfillment"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
	"github.com/information-sharing-networks/audiobook-license/app/internal/services"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

var fulfillCmd = &cobra.Command{
	Use:   "fulfill",
	Short: "Fulfill an LCP license into a playable package",
	Long: `Download the license (if given as a URL), download the publication it links to,
and embed the license in the package as license.lcpl.

Interrupting the command (Ctrl-C) cancels the download and removes the partial file.

Example:
  licensecheck fulfill --license https://example.com/loans/1/license --output ./book.audiobook --token $TOKEN
  licensecheck fulfill --license ./book.lcpl --output ./book.audiobook --manifest-out ./manifest.json --check`,
	RunE: runFulfill,
}

var (
	fulfillLicense     string
	fulfillOutput      string
	fulfillManifestOut string
	fulfillUser        string
	fulfillPassword    string
	fulfillToken       string
	fulfillVerifyHash  bool
	fulfillCheck       bool
	fulfillNow         string
)

func init() {
	rootCmd.AddCommand(fulfillCmd)

	fulfillCmd.Flags().StringVar(&fulfillLicense, "license", "", "License URL or path to a license file (required)")
	fulfillCmd.Flags().StringVarP(&fulfillOutput, "output", "o", "", "Path of the package to write (required)")
	fulfillCmd.Flags().StringVar(&fulfillManifestOut, "manifest-out", "", "Also write the package manifest to this path")
	fulfillCmd.Flags().StringVar(&fulfillUser, "user", "", "User name for basic authentication")
	fulfillCmd.Flags().StringVar(&fulfillPassword, "password", "", "Password for basic authentication")
	fulfillCmd.Flags().StringVar(&fulfillToken, "token", "", "Bearer token")
	fulfillCmd.Flags().BoolVar(&fulfillVerifyHash, "verify-hash", true, "Check the package against the hash declared in the license")
	fulfillCmd.Flags().BoolVar(&fulfillCheck, "check", false, "Run the license checks against the package manifest")
	fulfillCmd.Flags().StringVar(&fulfillNow, "now", "", "Evaluate the rights window at this RFC 3339 time (with --check)")
	_ = fulfillCmd.MarkFlagRequired("license")
	_ = fulfillCmd.MarkFlagRequired("output")
	fulfillCmd.MarkFlagsMutuallyExclusive("token", "user")
	fulfillCmd.MarkFlagsRequiredTogether("user", "password")
}

func runFulfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	now, err := parseClock(fulfillNow)
	if err != nil {
		return err
	}

	svc, err := services.NewServices(ctx, cfg, appLogger, nil)
	if err != nil {
		return err
	}

	workflow, err := svc.Workflow(credentialsFromFlags(fulfillUser, fulfillPassword, fulfillToken), fulfillVerifyHash)
	if err != nil {
		return err
	}

	sink := events.Tee(events.LogSink(appLogger), printEvents(cmd))

	var result *fulfillment.Result
	if isRemote(fulfillLicense) {
		result, err = workflow.Run(ctx, fulfillLicense, fulfillOutput, sink)
	} else {
		result, err = fulfillLocalLicense(ctx, workflow, sink)
	}
	if err != nil {
		if errors.Is(err, fulfillment.ErrCancelled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "fulfillment cancelled")
			return err
		}
		printFulfillmentError(cmd, err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Package:  %s (license %s)\n", result.PackagePath, result.License.ID)

	if fulfillManifestOut != "" {
		if err := os.WriteFile(fulfillManifestOut, result.Manifest.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		fmt.Fprintf(out, "✓ Manifest: %s\n", fulfillManifestOut)
	}

	if !fulfillCheck {
		return nil
	}

	m, err := manifest.Parse(result.Manifest.Data)
	if err != nil {
		return err
	}
	checkResult := runChecks(cmd, svc.Orchestrator(now), m, false, false)
	printResult(cmd, checkResult)
	if !checkResult.Succeeded() {
		return errRejected
	}
	return nil
}

func fulfillLocalLicense(ctx context.Context, workflow *fulfillment.Workflow, sink events.Sink) (*fulfillment.Result, error) {
	data, err := os.ReadFile(fulfillLicense)
	if err != nil {
		return nil, fmt.Errorf("failed to read license: %w", err)
	}
	license, err := workflow.ParseLicense(data)
	if err != nil {
		return nil, err
	}
	return workflow.Fulfill(ctx, license, fulfillOutput, sink)
}

// credentialsFromFlags returns nil when no credentials were given.
func credentialsFromFlags(user, password, token string) transport.Credentials {
	switch {
	case token != "":
		return transport.BearerToken{Token: token}
	case user != "":
		return transport.BasicAuth{Username: user, Password: password}
	default:
		return nil
	}
}

func isRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func printFulfillmentError(cmd *cobra.Command, err error) {
	var fe *fulfillment.Error
	if !errors.As(err, &fe) {
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "✗ %s (%s)\n", fe.Message(), fe.Code())
	for _, extra := range fe.ExtraMessages() {
		fmt.Fprintf(w, "    %s\n", extra)
	}
}
