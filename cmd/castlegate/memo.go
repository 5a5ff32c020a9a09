package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castlegate-ai/castlegate/pkg/config"
	"github.com/castlegate-ai/castlegate/pkg/memo"
)

func newMemoCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "memo",
		Short: "Manage the commentary memo store",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memo store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openMemo(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := s.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\nHits:    %d\nMisses:  %d\n", stats.Entries, stats.Hits, stats.Misses)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear memo entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openMemo(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := s.Clear(expiredOnly); err != nil {
				return err
			}
			if expiredOnly {
				fmt.Println("Expired memo entries cleared.")
			} else {
				fmt.Println("All memo entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "castlegate.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func openMemo(configPath string) (*memo.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	s, err := memo.New(cfg.DBPath, cfg.Cache.MemoTTL)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}
