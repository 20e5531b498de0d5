// licensecheck is the command line tool for running audiobook license checks and fulfilling LCP licenses.
package main

import "github.com/information-sharing-networks/audiobook-license/app/internal/cli"

func main() {
	cli.Execute()
}
