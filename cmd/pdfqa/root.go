package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the pdfqa command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdfqa",
		Short:         "Ask questions about PDF documents",
		Long:          "pdfqa indexes a PDF, retrieves the passages relevant to a question and has a chat model answer from them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default ./config.yaml, then ~/.config/pdfqa/config.yaml)")
	root.PersistentFlags().String("api-key", "", "embedding API key (default from the configured env var)")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newAskCmd(),
	)
	return root
}
