package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/issuers"
)

var issuersCmd = &cobra.Command{
	Use:   "issuers",
	Short: "List the trusted signature issuers",
	Long: `List the issuers whose manifest signatures are trusted, with the URL their key set is fetched from.

The built-in issuers can be extended with a CSV file (issuer,certificate_url) named by ISSUER_REGISTRY_PATH.`,
	RunE: runIssuers,
}

func init() {
	rootCmd.AddCommand(issuersCmd)
}

func runIssuers(cmd *cobra.Command, args []string) error {
	registry, err := issuers.LoadRegistry(cfg.IssuerRegistryPath)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUER\tCERTIFICATE URL")
	for _, issuer := range registry.Issuers() {
		fmt.Fprintf(w, "%s\t%s\n", issuer.Name, issuer.CertificateURL)
	}
	return w.Flush()
}
