package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/anchorage/internal/harness"
	"github.com/roach88/anchorage/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsOut string
}

// RunResult is the run command payload.
type RunResult struct {
	Scenario string          `json:"scenario"`
	Result   *harness.Result `json:"result"`
}

func (r RunResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s: %d record(s) after %d session(s)", r.Scenario, r.Result.Count, len(r.Result.Sessions))
	for i, s := range r.Result.Sessions {
		for _, save := range s.Saves {
			fmt.Fprintf(&b, "\n  s%d save %s", i, save.Result)
			if save.Result == "committed" {
				fmt.Fprintf(&b, " index=%d", save.Index)
			}
		}
		if s.Load != nil {
			fmt.Fprintf(&b, "\n  s%d load %s (%d attempted)", i, s.Load.Result, s.Load.Attempted)
			for _, o := range s.Load.Outcomes {
				fmt.Fprintf(&b, "\n    [%d] %s at (%g, %g, %g)", o.Index, o.Kind, o.At[0], o.At[1], o.At[2])
				if o.Reason != "" {
					fmt.Fprintf(&b, " %s", o.Reason)
				}
			}
		}
	}
	if r.Result.Pass {
		b.WriteString("\n✓ assertions passed")
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against the configured store",
		Long: `Run a lifecycle scenario against the simulated tracking subsystem,
persisting records to the configured record store.

Unlike test, run uses the real store backend, so records survive the run
and can be examined with inspect. Ctrl-C cancels the scenario.

Exit codes:
  0 - Scenario ran and its assertions passed
  1 - One or more assertions failed
  2 - Command error (unreadable scenario, store unavailable, etc.)

Examples:
  anchorctl run scenarios/two-saves-reload.yaml --store ./anchors.db
  anchorctl run scenario.yaml --backend memory --metrics-out ./anchorage.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to this textfile after the run")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeScenario, "failed to load scenario", err, nil)
	}

	s, err := openSession(opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer s.Close()

	obs := metrics.New(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var result *harness.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		s.logger.Info("scenario starting", "scenario", scenario.Name, "backend", s.cfg.Store.Backend)
		r, err := harness.Run(gctx, scenario,
			harness.WithBackend(s.backend),
			harness.WithLogger(s.logger),
			harness.WithObserver(obs),
		)
		result = r
		return err
	})
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, cancelling scenario", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeExecution, "scenario execution failed", err, nil)
	}

	if opts.MetricsOut != "" {
		if err := obs.WriteTextfile(opts.MetricsOut); err != nil {
			return f.Fail(ExitCommandError, ErrCodeMetricsWrite, "failed to write metrics", err, nil)
		}
		f.VerboseLog("metrics written to %s", opts.MetricsOut)
	}

	if !result.Pass {
		return f.Fail(ExitFailure, ErrCodeAssertion, fmt.Sprintf("%d assertion(s) failed", len(result.Errors)), nil, result.Errors)
	}
	s.logger.Info("scenario finished", "scenario", scenario.Name, "records", result.Count)
	return f.Success(RunResult{Scenario: scenario.Name, Result: result})
}
