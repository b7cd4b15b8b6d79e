// Command audit-verify checks that an exported audit-log CSV and its
// sidecar signature have not been tampered with since export.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nebulus-edge/intelligence/internal/audit"
)

func main() {
	secretKeyEnv := flag.String("secret-key-env", "AUDIT_SECRET_KEY", "environment variable holding the export signing key")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: audit-verify [-secret-key-env NAME] <path-to-exported.csv>")
		os.Exit(1)
	}
	csvPath := flag.Arg(0)

	secretKey := os.Getenv(*secretKeyEnv)
	if secretKey == "" {
		fmt.Fprintf(os.Stderr, "audit-verify: %s is not set\n", *secretKeyEnv)
		os.Exit(1)
	}

	result, err := audit.Verify(csvPath, []byte(secretKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit-verify: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("hash_valid=%t signature_valid=%t tampered=%t\n",
		result.HashValid, result.SignatureValid, result.Tampered)

	if result.Tampered {
		fmt.Fprintln(os.Stderr, "audit-verify: export has been tampered with")
		os.Exit(1)
	}
}
