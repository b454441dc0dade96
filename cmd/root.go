// Package cmd contains the veille command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "veille",
	Short: "veille - RAG query service over competitive-intelligence reports",
	Long: `veille answers questions about a client's archived veille reports.

It retrieves relevant report passages by vector similarity, filters them
with an LLM relevance check, and generates a cited answer, keeping the
exchange in a persistent conversation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
