//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Command ragchat serves the retrieval augmented chat API over a directory
// of course documents.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-rag-go/config"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/server/api"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/trace"
)

var version = "0.1.0"

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Chat with course documents",
		Long:          "ragchat indexes a directory of documents and answers questions about them over HTTP.",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "path to a .env file")

	root.AddCommand(serveCmd(flags))
	root.AddCommand(indexCmd(flags))
	root.AddCommand(versionCmd())
	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragchat %s\n", version)
		},
	}
}

func indexCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Bring the document index up to date and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return runIndex(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runIndex(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := newIndexApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.index.Refresh(ctx); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(a.index.Stats())
}

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if cfg.Metrics.Enabled {
		opts := []metric.Option{
			metric.WithInsecure(cfg.Metrics.Insecure),
			metric.WithInterval(cfg.Metrics.Interval),
			metric.WithServiceVersion(version),
		}
		if cfg.Metrics.Endpoint != "" {
			opts = append(opts, metric.WithEndpoint(cfg.Metrics.Endpoint))
		}
		clean, err := metric.Start(ctx, opts...)
		if err != nil {
			return err
		}
		defer func() {
			if err := clean(); err != nil {
				log.Warnf("metrics shutdown: %v", err)
			}
		}()
	}
	if cfg.Tracing.Enabled {
		clean, err := trace.Start(ctx,
			trace.WithEndpoint(cfg.Tracing.Endpoint),
			trace.WithInsecure(cfg.Tracing.Insecure),
			trace.WithServiceVersion(version),
		)
		if err != nil {
			return err
		}
		defer func() {
			if err := clean(); err != nil {
				log.Warnf("tracing shutdown: %v", err)
			}
		}()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := a.index.Index(ctx); err != nil {
		log.Warnf("initial index unavailable, answering without documents: %v", err)
	}

	done := make(chan struct{})
	background := 2
	go func() {
		a.sessions.Run(ctx, cfg.Session.CleanupInterval)
		done <- struct{}{}
	}()
	go func() {
		a.cache.Run(ctx, cfg.Cache.SaveInterval)
		done <- struct{}{}
	}()
	if cfg.Documents.Watch {
		background++
		go func() {
			if err := a.index.Watch(ctx, cfg.Documents.WatchDebounce); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("document watcher stopped: %v", err)
			}
			done <- struct{}{}
		}()
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.New(a.chat,
			api.WithIndexStats(a.index),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
			api.WithLocation(loc),
		).Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("ragchat %s listening on %s", version, cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	log.Info("shutting down")
	shutdownCtx, stopShutdown := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer stopShutdown()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warnf("http shutdown: %v", serr)
	}
	cancel()
	for ; background > 0; background-- {
		<-done
	}
	return err
}
