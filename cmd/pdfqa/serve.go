package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pdfqa/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and web UI",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "override listen address (host:port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sc := a.cfg.Server
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		sc.Addr = addr
	}
	srv, err := server.New(server.Config{
		Addr:           sc.Addr,
		UploadDir:      sc.UploadDir,
		MaxUploadBytes: int64(sc.MaxUploadMB) << 20,
		CORSOrigins:    sc.CORSOrigins,
		RequestTimeout: time.Duration(sc.RequestTimeout) * time.Second,
		ShutdownGrace:  time.Duration(sc.ShutdownSecs) * time.Second,
	}, a.svc, a.logger, a.metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}
