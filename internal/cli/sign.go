package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Add a signature extension to a manifest",
	Long: `Sign a manifest with an issuer's RSA private key.

The signature is computed over the canonical (RFC 8785) form of the manifest without its signature
extension and written to metadata["http://www.feedbooks.com/audiobooks/signature"].
Any existing signature is replaced.

Example:
  licensecheck sign --manifest ./manifest.json --key ./keys/private.pem --issuer https://publisher.example.com -o signed.json`,
	RunE: runSign,
}

var (
	signManifestPath string
	signKeyPath      string
	signIssuer       string
	signOutput       string
)

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringVar(&signManifestPath, "manifest", "", "Path to the manifest JSON file (required)")
	signCmd.Flags().StringVar(&signKeyPath, "key", "", "Path to the RSA private key PEM file (required)")
	signCmd.Flags().StringVar(&signIssuer, "issuer", "", "Issuer URI to record in the signature (required)")
	signCmd.Flags().StringVarP(&signOutput, "output", "o", "", "Write the signed manifest to this file instead of stdout")
	_ = signCmd.MarkFlagRequired("manifest")
	_ = signCmd.MarkFlagRequired("key")
	_ = signCmd.MarkFlagRequired("issuer")
}

func runSign(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(signManifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	privateKey, err := crypto.ReadRSAPrivateKeyFromPEMFile(filepath.Dir(signKeyPath), filepath.Base(signKeyPath))
	if err != nil {
		return err
	}

	signed, err := manifest.Sign(data, signIssuer, crypto.AlgorithmRSASHA256, privateKey)
	if err != nil {
		return err
	}

	if signOutput == "" {
		_, err := cmd.OutOrStdout().Write(append(signed, '\n'))
		return err
	}
	if err := os.WriteFile(signOutput, signed, 0o644); err != nil {
		return fmt.Errorf("failed to write signed manifest: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Signed manifest: %s (issuer %s)\n", signOutput, signIssuer)
	return nil
}
