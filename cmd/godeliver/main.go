// Command godeliver serves the storefront: checkout with one-time download
// passwords, invoice PDFs, and the admin catalog API.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
