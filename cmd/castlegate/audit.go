package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/castlegate-ai/castlegate/pkg/audit"
	"github.com/castlegate-ai/castlegate/pkg/config"
	"github.com/castlegate-ai/castlegate/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the request outcome log",
	}

	cmd.AddCommand(
		newAuditListCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditListCmd() *cobra.Command {
	var (
		configPath     string
		route          string
		plan           string
		path           string
		identityPrefix string
		since          string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				Route:          route,
				Plan:           plan,
				Path:           path,
				IdentityPrefix: identityPrefix,
				Limit:          limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "castlegate.yaml", "path to config file")
	cmd.Flags().StringVar(&route, "route", "", "filter by route")
	cmd.Flags().StringVar(&plan, "plan", "", "filter by plan tier")
	cmd.Flags().StringVar(&path, "path", "", "filter by resolution path")
	cmd.Flags().StringVar(&identityPrefix, "identity-prefix", "", "filter by identity prefix")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit counts by route, path and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "castlegate.yaml", "path to config file")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "castlegate.yaml", "path to config file")
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-34s %-16s %-6s %-18s %-16s %6s %8s %-20s\n",
		"REQUEST ID", "ROUTE", "PLAN", "PATH", "SPEECH", "STATUS", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 132) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-34s %-16s %-6s %-18s %-16s %6d %6dms %-20s\n",
			e.RequestID, e.Route, e.Plan, e.Path, e.SpeechPath,
			e.StatusCode, e.LatencyMs,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-18s %-12s %8s\n", "ROUTE", "PATH", "DAY", "COUNT")
	b.WriteString(strings.Repeat("-", 58) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-16s %-18s %-12s %8d\n", s.Route, s.Path, s.Day, s.Count)
	}
	return b.String()
}
