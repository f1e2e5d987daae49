package main

import (
	"github.com/spf13/cobra"

	"gritsync/internal/progress"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Print the static step registry of an application type",
	RunE:  runRegistry,
}

var registryType string

func init() {
	registryCmd.Flags().StringVarP(&registryType, "type", "t", "NCLEX", "Application type (NCLEX or EAD)")
	rootCmd.AddCommand(registryCmd)
}

func runRegistry(cmd *cobra.Command, _ []string) error {
	reg, err := progress.RegistryFor(registryType)
	if err != nil {
		return err
	}
	writeRegistry(cmd.OutOrStdout(), reg)
	return nil
}
