// Command pitwall maintains the competitor roster snapshot from the shell.
//
// Usage:
//
//	pitwall merge --file observations.yaml
//	pitwall thresholds
//	pitwall report --limit 20
//	pitwall show "Lando Norris McLaren"
package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	app "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/domain/report"
	"github.com/okian/pitwall/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type globalFlags struct {
	snapshot string
	logLevel string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "pitwall",
		Short:        "Competitor history and threshold CLI",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&g.snapshot, "snapshot", "", "Snapshot file (overrides snapshot_path)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (overrides log_level)")

	root.AddCommand(mergeCmd(&g))
	root.AddCommand(thresholdsCmd(&g))
	root.AddCommand(reportCmd(&g))
	root.AddCommand(showCmd(&g))
	return root
}

func mergeCmd(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Seed or merge observations from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			observations, err := readObservations(file)
			if err != nil {
				return err
			}
			return withService(cmd, g, func(ctx context.Context, svc *app.Service) error {
				for _, obs := range observations {
					out, err := svc.Apply(ctx, obs)
					if err != nil {
						return err
					}
					if out.Created {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: created\n", out.Competitor)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d inserted, %d dropped, %d existing\n",
						out.Competitor, len(out.Merge.Inserted), len(out.Merge.Dropped), out.Merge.Existing)
				}
				return svc.Save(ctx)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Observation file (.json, .yaml or .yml)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func thresholdsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds",
		Short: "Recompute thresholds for every competitor and print the ranking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, g, func(ctx context.Context, svc *app.Service) error {
				sum, err := svc.Recompute(ctx)
				if err != nil {
					return err
				}
				for _, name := range slices.Sorted(maps.Keys(sum.Errors)) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", name, sum.Errors[name])
				}
				if err := svc.Save(ctx); err != nil {
					return err
				}
				return report.Render(cmd.OutOrStdout(), svc.Report(ctx, 0))
			})
		},
	}
}

func reportCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the ranking with the cached thresholds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, g, func(ctx context.Context, svc *app.Service) error {
				return report.Render(cmd.OutOrStdout(), svc.Report(ctx, limit))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (0 for all)")
	return cmd
}

func showCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print one competitor with its last three events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, g, func(ctx context.Context, svc *app.Service) error {
				p, err := svc.Profile(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), p.String())
				if t := p.Thresholds; t.Computed {
					fmt.Fprintf(cmd.OutOrStdout(), "  to poor %d, to good %d, to excellent %d\n",
						t.ToPoor, t.ToGood, t.ToExcellent)
				}
				return nil
			})
		},
	}
}

// withService loads config and the snapshot, runs fn and releases the
// service. fn is responsible for saving.
func withService(cmd *cobra.Command, g *globalFlags, fn func(context.Context, *app.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if g.snapshot != "" {
		cfg.SnapshotPath = g.snapshot
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	log := logger.New(cmd.ErrOrStderr())

	svc, err := app.New(ctx,
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithSnapshot(cfg.SnapshotPath, 0),
		app.WithTiers(cfg.PoorThreshold, cfg.GoodThreshold, cfg.ExcellentThreshold),
		app.WithSearch(cfg.SearchStart, cfg.SearchMaxSteps),
		app.WithTierAValue(cfg.TierAValue),
	)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop(ctx) }()

	if err := svc.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, svc)
}
