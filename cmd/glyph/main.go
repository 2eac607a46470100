package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Best-effort local-dev convenience: populate the environment from a
	// .env file if present, before any GLYPH_* lookup happens. Absence of
	// the file is not an error.
	_ = godotenv.Load()

	root := &cobra.Command{Use: "glyph"}
	root.AddCommand(gatewayCmd())
	root.AddCommand(nodeCmd())
	root.AddCommand(clientCmd())
	root.AddCommand(minterCmd())
	root.AddCommand(configureTokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
