package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "aws-connections",
	Short:         "AWS connection settings panel for a BuildHive host.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, hostSimCmd)
}
