package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/castlegate-ai/castlegate/pkg/audit"
	"github.com/castlegate-ai/castlegate/pkg/blobcache"
	"github.com/castlegate-ai/castlegate/pkg/commentary"
	"github.com/castlegate-ai/castlegate/pkg/config"
	"github.com/castlegate-ai/castlegate/pkg/engine"
	"github.com/castlegate-ai/castlegate/pkg/gateway"
	"github.com/castlegate-ai/castlegate/pkg/memo"
	"github.com/castlegate-ai/castlegate/pkg/speech"
	"github.com/castlegate-ai/castlegate/pkg/store"
	"github.com/castlegate-ai/castlegate/pkg/trial"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the castlegate gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			memoStore, err := memo.New(cfg.DBPath, cfg.Cache.MemoTTL)
			if err != nil {
				return fmt.Errorf("init memo store: %w", err)
			}
			defer func() { _ = memoStore.Close() }()

			audioCache := blobcache.New(cfg.Cache.AudioBudgetBytes)
			textCache := blobcache.New(cfg.Cache.TextBudgetBytes)
			log.Info("caches initialized",
				"audio", humanize.IBytes(uint64(cfg.Cache.AudioBudgetBytes)),
				"text", humanize.IBytes(uint64(cfg.Cache.TextBudgetBytes)))

			generator := commentary.New(
				commentary.NewHTTPClient(cfg.Generation.URL, cfg.Generation.APIKey),
				memoStore,
				textCache,
				commentary.Options{
					RatePerMinute: cfg.Generation.RatePerMinute,
					MaxChars:      cfg.Generation.MaxChars,
				},
			)

			trials, err := trial.New(cfg.DBPath, trial.Options{
				Enabled:  cfg.Trial.Enabled,
				Duration: cfg.Trial.Duration(),
			})
			if err != nil {
				return fmt.Errorf("init trial manager: %w", err)
			}
			defer func() { _ = trials.Close() }()
			trials.StartSweep()

			// An untyped nil here keeps the selector's premium check honest.
			var premium speech.Provider
			if p := speech.NewPremiumProvider(cfg.Speech.PremiumURL, cfg.Speech.PremiumAPIKey, cfg.Speech.PremiumVoiceID); p != nil {
				premium = p
			}
			var budget speech.Provider
			if b := speech.NewBudgetProvider(cfg.Speech.BudgetURL); b != nil {
				budget = b
			}
			selector := speech.New(premium, budget, audioCache, cfg.Speech.Timeout, cfg.Speech.MaxTextChars)

			fallbackStore, err := store.NewFallback(cfg.Store.FallbackPath)
			if err != nil {
				return fmt.Errorf("init fallback store: %w", err)
			}
			var primaryStore store.Store
			if p := store.NewPrimary(cfg.Store.PrimaryURL, cfg.Store.PrimaryAPIKey); p != nil {
				primaryStore = p
			}
			stores := store.NewFailover(primaryStore, fallbackStore, store.FailoverOptions{
				ProbeTimeout: cfg.Store.ProbeTimeout,
				ReprobeAfter: cfg.Store.ReprobeAfter,
			})
			defer func() { _ = stores.Close() }()

			var analyzer engine.Analyzer
			if e := engine.NewHTTP(cfg.Engine.URL, cfg.Engine.Timeout); e != nil {
				analyzer = e
			}

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			srv := gateway.New(cfg, gateway.Deps{
				Trials:    trials,
				Generator: generator,
				Speech:    selector,
				Stores:    stores,
				Engine:    analyzer,
				Auditor:   auditor,
				Audio:     audioCache,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("starting castlegate gateway", "config", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "castlegate.yaml", "path to config file")
	return cmd
}
