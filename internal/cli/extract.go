package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/fulfillment"
)

var extractCmd = &cobra.Command{
	Use:   "extract-manifest",
	Short: "Print the manifest of a fulfilled package",
	Long: `Read manifest.json from an audiobook package.

Example:
  licensecheck extract-manifest --package ./book.audiobook > manifest.json`,
	RunE: runExtract,
}

var (
	extractPackage string
	extractOutput  string
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractPackage, "package", "", "Path to the package (required)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Write the manifest to this file instead of stdout")
	_ = extractCmd.MarkFlagRequired("package")
}

func runExtract(cmd *cobra.Command, args []string) error {
	manifest, err := fulfillment.ExtractManifest(extractPackage)
	if err != nil {
		return err
	}

	if extractOutput == "" {
		_, err := cmd.OutOrStdout().Write(manifest.Data)
		return err
	}
	if err := os.WriteFile(extractOutput, manifest.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
