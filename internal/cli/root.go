// Package cli implements the licensecheck command line tool.
package cli

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/config"
	"github.com/information-sharing-networks/audiobook-license/app/internal/logger"
	"github.com/information-sharing-networks/audiobook-license/app/internal/version"
)

var (
	cfg       *config.Environment
	appLogger *slog.Logger
)

// errRejected is returned when a command completed but the license was rejected.
// The reason has already been printed.
var errRejected = errors.New("license rejected")

var rootCmd = &cobra.Command{
	Use:               "licensecheck",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Audiobook license checks and fulfillment",
	Long: `licensecheck verifies that an audiobook manifest is authentic, within its rights window
and backed by an active license, and fulfills LCP licenses into playable packages.

Configuration is read from environment variables (see internal/config).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewConfig()
		if err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}

		appLogger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
		return nil
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
}
