// Package main implements progress-report, an operator tool that prints the
// step tree and progress of an application.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "progress-report",
	Short: "Inspect application progress",
	Long:  "progress-report loads an application's timeline, payments and accounts and prints its step tree, percentage and derived status.",
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
