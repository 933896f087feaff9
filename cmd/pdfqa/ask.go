package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pdfqa/internal/service"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <file.pdf> <question>",
		Short: "Answer one question about a document",
		Args:  cobra.ExactArgs(2),
		RunE:  runAsk,
	}
	cmd.Flags().Bool("stream", false, "print the answer as it is generated")
	cmd.Flags().Int("top-k", 0, "chunks retrieved for the question (default from config)")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	topK, _ := cmd.Flags().GetInt("top-k")
	stream, _ := cmd.Flags().GetBool("stream")
	req := service.AskRequest{FilePath: args[0], Query: args[1], APIKey: a.apiKey, TopK: topK}
	out := cmd.OutOrStdout()

	if stream {
		_, err := a.svc.AskWithOptionsStream(cmd.Context(), req, func(chunk string) error {
			_, err := fmt.Fprint(out, chunk)
			return err
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out)
		return err
	}

	answer, err := a.svc.AskWithOptions(cmd.Context(), req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, answer)
	return err
}
