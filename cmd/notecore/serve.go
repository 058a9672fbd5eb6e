package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notecore/internal/analyzer"
	"notecore/internal/background"
	"notecore/internal/config"
	"notecore/internal/fulltext"
	"notecore/internal/httpapi"
	"notecore/internal/kv"
	"notecore/internal/logger"
	"notecore/internal/posts"
	"notecore/internal/storage"
	"notecore/internal/tags"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background indexing/retention workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, cleanupLog, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer cleanupLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	kvStore := kv.NewSQLiteStore(db)
	a := analyzer.New()
	index := fulltext.New(kvStore, cfg.IndexPrefix, a)

	tagStore := tags.NewStore(db)
	postStore := posts.NewStore(db, tagStore)

	bg := background.New(db.DB, index, postStore, log, background.Config{
		Shards:        cfg.BackgroundWorkers,
		RetentionDays: cfg.RetentionDays,
	})

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go func() {
		if err := bg.Start(bgCtx); err != nil {
			log.Error("background runner stopped", "error", err)
		}
	}()
	defer bg.Stop()

	server := httpapi.New(cfg, postStore, tagStore, index, bg, kvStore, log)
	log.Info("starting notecore", "env", cfg.Env, "addr", cfg.HTTPAddr)
	return server.Start(ctx)
}
