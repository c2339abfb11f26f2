package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanet-platform/yatable/controlplane"
)

var rootCmd = &cobra.Command{
	Use:           "yatable",
	Short:         "Named lookup tables for packet classification",
	Version:       controlplane.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newTableCmd())
	rootCmd.AddCommand(newEntryCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newAlgoCmd())
	rootCmd.AddCommand(newRegistryCmd())
	rootCmd.AddCommand(newLogCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
