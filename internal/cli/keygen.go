package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
)

// file names written by keygen
const (
	privateKeyFileName = "private.pem"
	publicKeyFileName  = "public.pem"
	keySetFileName     = "jwks.json"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an issuer RSA key pair",
	Long: `Generate an RSA key pair for signing manifests.

Writes private.pem (keep it secret), public.pem and jwks.json to the output directory.
jwks.json is the key set to publish at the issuer's certificate URL.

Example:
  licensecheck keygen --dir ./keys --size 4096`,
	RunE: runKeygen,
}

var (
	keySize int
	keyDir  string
	keyID   string
)

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().IntVar(&keySize, "size", 4096, "RSA key size in bits (2048 or 4096)")
	keygenCmd.Flags().StringVar(&keyDir, "dir", "./keys", "Output directory for the key files")
	keygenCmd.Flags().StringVar(&keyID, "kid", "", "Key ID for the JWK (default: derived from the key thumbprint)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keySize != 2048 && keySize != 4096 {
		return fmt.Errorf("invalid RSA key size: %d (must be 2048 or 4096)", keySize)
	}

	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generating %d-bit RSA key pair\n", keySize)

	privateKey, err := crypto.GenerateRSAKeyPair(keySize)
	if err != nil {
		return err
	}

	kid := keyID
	if kid == "" {
		kid, err = crypto.GenerateKeyIDFromRSAKey(&privateKey.PublicKey)
		if err != nil {
			return fmt.Errorf("failed to generate key ID: %w", err)
		}
	}

	if err := crypto.SaveRSAPrivateKeyToPEMFile(privateKey, keyDir, privateKeyFileName); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	fmt.Fprintf(out, "✓ Private key: %s\n", filepath.Join(keyDir, privateKeyFileName))

	if err := crypto.SaveRSAPublicKeyToPEMFile(&privateKey.PublicKey, keyDir, publicKeyFileName); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	fmt.Fprintf(out, "✓ Public key:  %s\n", filepath.Join(keyDir, publicKeyFileName))

	if err := crypto.SaveRSAPublicKeySetToFile(&privateKey.PublicKey, kid, keyDir, keySetFileName); err != nil {
		return fmt.Errorf("failed to save JWK set: %w", err)
	}
	fmt.Fprintf(out, "✓ JWK set:     %s (kid: %s)\n", filepath.Join(keyDir, keySetFileName), kid)

	return nil
}
