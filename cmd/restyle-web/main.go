// Package main provides the restyle-web developer CLI: a local server for
// exercising the callback routes against an in-memory table, and a
// material catalog seeder for real environments.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "restyle-web",
	Short: "Developer tools for the restyle backend",
	Long: `restyle-web bundles local development helpers for the restyle backend.

serve runs the worker callback endpoints against an in-memory table (or
the real DynamoDB table when TABLE_NAME is set), so worker integrations
can be exercised without deploying. seed-materials bulk-loads the
material catalog from a JSON file.

Examples:
  restyle-web serve --port 8080 --secret dev-secret
  TABLE_NAME=restyle-main restyle-web seed-materials --file materials.json`,
}

func main() {
	rootCmd.AddCommand(serveCmd, seedCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
