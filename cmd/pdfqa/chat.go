package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdfqa/internal/tui"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <file.pdf>",
		Short: "Chat about a document in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runChat,
	}
	cmd.Flags().Int("top-k", 0, "chunks retrieved per question (default from config)")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	timeout := time.Duration(a.cfg.Server.RequestTimeout) * time.Second
	fmt.Fprintf(cmd.ErrOrStderr(), "Indexing %s...\n", args[0])
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	summary, err := a.svc.Summarize(ctx, args[0], a.apiKey)
	cancel()
	if err != nil {
		return err
	}

	topK, _ := cmd.Flags().GetInt("top-k")
	m := tui.New(a.svc, tui.Config{
		FilePath: args[0],
		APIKey:   a.apiKey,
		TopK:     topK,
		Summary:  summary,
		Timeout:  timeout,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
