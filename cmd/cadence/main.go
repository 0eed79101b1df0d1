package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mpataki/cadence/internal/catalog"
	"github.com/mpataki/cadence/internal/config"
	"github.com/mpataki/cadence/internal/control"
	cadencelog "github.com/mpataki/cadence/internal/log"
	"github.com/mpataki/cadence/internal/metrics"
	"github.com/mpataki/cadence/internal/models"
	"github.com/mpataki/cadence/internal/orchestrator"
	"github.com/mpataki/cadence/internal/storage"
	"github.com/mpataki/cadence/internal/tui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cadence",
		Short:         "Run orchestration engine",
		Long:          "Cadence drives runs through their step tables on a shared clock, with pause, resume and stop control.",
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newTypesCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDeleteCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// engine is the wired set of components a command works with.
type engine struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Storage
	types  *catalog.Registry
	orch   *orchestrator.Orchestrator
	svc    *control.Service
}

type engineOptions struct {
	logger      *slog.Logger
	increment   orchestrator.Increment
	observers   []orchestrator.Observer
	metricsAddr string
}

func openEngine(ctx context.Context, cfg *config.Config, opts engineOptions) (*engine, error) {
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	types, err := catalog.Load(cfg.TypeDirs())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load run types: %w", err)
	}

	if opts.increment == nil {
		opts.increment = orchestrator.Fixed(cfg.Increment)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(opts.logger),
		orchestrator.WithIncrement(opts.increment),
		orchestrator.WithObserver(storage.NewArchiver(store, opts.logger)),
	}
	for _, obs := range opts.observers {
		orchOpts = append(orchOpts, orchestrator.WithObserver(obs))
	}

	if opts.metricsAddr != "" {
		collector := metrics.New(prometheus.NewRegistry())
		orchOpts = append(orchOpts, orchestrator.WithObserver(collector))
		go func() {
			if err := collector.Serve(ctx, opts.metricsAddr, opts.logger); err != nil {
				opts.logger.Error("metrics endpoint failed", cadencelog.Error(err))
			}
		}()
	}

	orch := orchestrator.New(orchestrator.Config{
		TickInterval:    cfg.TickInterval,
		ActivationDelay: cfg.ActivationDelay,
		HistoryLimit:    cfg.HistoryLimit,
		BlockPolicy:     orchestrator.BlockPolicy(cfg.BlockPolicy),
	}, types, orchOpts...)

	return &engine{
		cfg:    cfg,
		logger: opts.logger,
		store:  store,
		types:  types,
		orch:   orch,
		svc:    control.New(orch, types, control.WithLogger(opts.logger)),
	}, nil
}

func (e *engine) Close() {
	e.orch.Close()
	e.store.Close()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg, nil
}

func openStore() (*storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The UI owns the terminal, so logs go to a file in the data dir.
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "cadence.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	logCfg := cadencelog.FromEnv()
	logCfg.Output = logFile
	logger := cadencelog.New(logCfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	eng, err := openEngine(ctx, cfg, engineOptions{logger: logger, metricsAddr: metricsAddr})
	if err != nil {
		return err
	}
	defer eng.Close()

	app := tui.NewApp(ctx, eng.svc, cfg.TickInterval/2)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <type>",
		Short: "Start a run and follow it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeID := args[0]
			mode, _ := cmd.Flags().GetString("mode")
			autoFail, _ := cmd.Flags().GetBool("auto-fail")
			increment, _ := cmd.Flags().GetInt("increment")
			random, _ := cmd.Flags().GetBool("random")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if increment > 0 {
				cfg.Increment = increment
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cadencelog.New(cadencelog.FromEnv())

			var inc orchestrator.Increment
			if random {
				inc = orchestrator.Random(1, 2*cfg.Increment, nil)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var eng *engine
			printer := orchestrator.ObserverFunc(func(ev models.Event) {
				switch ev.Type {
				case models.EventStarted:
					fmt.Fprintf(out, "Started %s\n", ev.RunID)
				case models.EventStep, models.EventBlocked:
					snap, err := eng.svc.Get(ev.RunID)
					if err != nil {
						return
					}
					st, _ := snap.Step(ev.Step)
					line := fmt.Sprintf("  %3d%%  %-16s %s", snap.Progress, ev.Step, st.Status)
					if ev.Type == models.EventBlocked && len(snap.Exceptions) > 0 {
						line += ": " + snap.Exceptions[len(snap.Exceptions)-1].Reason
					}
					fmt.Fprintln(out, line)
				}
			})

			eng, err = openEngine(ctx, cfg, engineOptions{
				logger:      logger,
				increment:   inc,
				observers:   []orchestrator.Observer{printer},
				metricsAddr: metricsAddr,
			})
			if err != nil {
				return err
			}
			defer eng.Close()

			var opts control.StartOptions
			if autoFail {
				opts.BlockPolicy = orchestrator.BlockPolicyFail
			}

			snap, err := eng.svc.Start(ctx, typeID, models.Mode(mode), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Queued %s (%s, %s)\n", snap.ID, snap.RunType, snap.Mode)
			id := snap.ID

			snap, err = eng.svc.Wait(ctx, id, cfg.TickInterval/2)
			if err == nil && snap.Status == models.RunStatusBlocked {
				fmt.Fprintf(out, "Run blocked at %d%%. Press Ctrl-C to stop it.\n", snap.Progress)
				<-ctx.Done()
				err = ctx.Err()
			}
			if err != nil {
				if ctx.Err() == nil {
					return err
				}
				if stopErr := eng.svc.Stop(id); stopErr != nil && !errors.Is(stopErr, orchestrator.ErrInvalidTransition) {
					return stopErr
				}
				fmt.Fprintln(out, "Interrupted, run stopped")
				snap, err = eng.svc.Get(id)
				if err != nil {
					return err
				}
			}

			printSummary(out, snap)
			if snap.Status == models.RunStatusFailed {
				return fmt.Errorf("run %s failed: %s", snap.ID, snap.Error)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", string(models.ModeFull), "Run mode: full or dry")
	cmd.Flags().Bool("auto-fail", false, "Fail the run as soon as a fatal step blocks")
	cmd.Flags().Int("increment", 0, "Progress per tick (default from CADENCE_INCREMENT)")
	cmd.Flags().Bool("random", false, "Advance by a random amount up to twice the increment")
	return cmd
}

func newTypesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List available run types",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			types, err := catalog.Load(cfg.TypeDirs())
			if err != nil {
				return fmt.Errorf("failed to load run types: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, rt := range types.List() {
				fmt.Fprintf(out, "%-12s %-24s %s\n", rt.ID, rt.Name, rt.Description)
				if !verbose {
					continue
				}
				for _, s := range rt.Steps {
					line := fmt.Sprintf("  %3d%%  %-8s %s", s.Threshold, s.Kind, s.Step)
					if s.Kind == models.StepKindBlock {
						line += "  (" + s.Outcome.Reason + ")"
						if s.Fatal {
							line += " fatal"
						}
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolP("verbose", "v", false, "Show each step table")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			for _, run := range runs {
				fmt.Fprintf(out, "%s %-10s [%s] %3d%%  %s\n",
					run.ID, run.RunType, run.Status, run.Progress,
					storage.FormatTimeAgo(run.CreatedAt))
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum runs to show")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			printSummary(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteRun(args[0]); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}

func printSummary(out io.Writer, run *models.RunSnapshot) {
	fmt.Fprintf(out, "Run %s: %s\n", run.ID, run.RunType)
	fmt.Fprintf(out, "Status: %s (%d%%)\n", run.Status, run.Progress)
	fmt.Fprintf(out, "Mode: %s\n", run.Mode)
	if run.StartedAt != nil && run.FinishedAt != nil {
		fmt.Fprintf(out, "Duration: %s\n", run.FinishedAt.Sub(*run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}

	fmt.Fprintln(out, "\nSteps:")
	for _, st := range run.Steps {
		fmt.Fprintf(out, "  %-16s %s\n", st.Name, st.Status)
	}

	if len(run.Exceptions) > 0 {
		fmt.Fprintln(out, "\nExceptions:")
		for _, ex := range run.Exceptions {
			fmt.Fprintf(out, "  %s: %s\n", ex.Step, ex.Reason)
			if ex.Action != "" {
				fmt.Fprintf(out, "    action: %s\n", ex.Action)
			}
		}
	}

	if len(run.Evidence) > 0 {
		fmt.Fprintln(out, "\nEvidence:")
		for _, ev := range run.Evidence {
			fmt.Fprintf(out, "  %s\n", ev.Text)
		}
	}

	if len(run.Insights) > 0 {
		fmt.Fprintln(out, "\nInsights:")
		for _, ins := range run.Insights {
			line := "  " + ins.Title
			if ins.Detail != "" {
				line += ": " + strings.TrimSpace(ins.Detail)
			}
			fmt.Fprintln(out, line)
		}
	}
}
