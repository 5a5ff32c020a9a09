package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/castlegate-ai/castlegate/pkg/config"
	"github.com/castlegate-ai/castlegate/pkg/trial"
)

func newTrialCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Inspect and manage daily pro trials",
	}

	statusCmd := &cobra.Command{
		Use:   "status <identity>",
		Short: "Show today's trial state for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := openTrials(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			info := m.Info(args[0])
			fmt.Printf("Eligible:   %t\n", info.Eligible)
			fmt.Printf("Used today: %t\n", info.UsedToday)
			fmt.Printf("Remaining:  %s\n", time.Duration(info.RemainingMs)*time.Millisecond)
			if info.StartTime != nil {
				fmt.Printf("Started:    %s\n", info.StartTime.Format(time.RFC3339))
			}
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <identity>",
		Short: "Restore today's trial eligibility for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := openTrials(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			m.Reset(args[0])
			fmt.Printf("Trial reset for %s.\n", args[0])
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge trial records from previous days",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := openTrials(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			m.Sweep()
			fmt.Println("Stale trial records purged.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "castlegate.yaml", "path to config file")
	cmd.AddCommand(statusCmd, resetCmd, sweepCmd)
	return cmd
}

func openTrials(configPath string) (*trial.Manager, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	m, err := trial.New(cfg.DBPath, trial.Options{
		Enabled:  cfg.Trial.Enabled,
		Duration: cfg.Trial.Duration(),
	})
	if err != nil {
		return nil, nil, err
	}
	return m, func() { _ = m.Close() }, nil
}
