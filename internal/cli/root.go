package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/anchorage/internal/config"
	"github.com/roach88/anchorage/internal/kv"
	"github.com/roach88/anchorage/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string

	// Store overrides. Empty means "use the config file value".
	Backend   string
	StorePath string
	Namespace string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for anchorctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "anchorctl",
		Short: "anchorctl - spatial anchor persistence tooling",
		Long: `Inspect and edit persisted anchor records, and run anchor lifecycle
scenarios against a simulated tracking subsystem.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (YAML)")
	pf.StringVar(&opts.Backend, "backend", "", fmt.Sprintf("record store backend %v (overrides config)", kv.ValidBackends))
	pf.StringVar(&opts.StorePath, "store", "", "record store path (overrides config)")
	pf.StringVar(&opts.Namespace, "namespace", "", "record key namespace (overrides config)")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Backend != "" {
		cfg.Store.Backend = o.Backend
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.Namespace != "" {
		cfg.Store.Namespace = o.Namespace
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg. Logs always go to w
// (stderr), never to the command's output stream.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// session is the config, logger and open store shared by store commands.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	backend kv.Store
	store   *store.Store
}

func (s *session) Close() error {
	return s.backend.Close()
}

// openSession loads config and opens the configured record store. Failures
// are reported through f and returned as ExitCommandError.
func openSession(opts *RootOptions, f *OutputFormatter) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err, nil)
	}
	logger := newLogger(cfg, f.GetErrWriter())

	logger.Debug("opening record store", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "namespace", cfg.Store.Namespace)
	backend, err := kv.Open(cfg.Store.Backend, cfg.Store.Path, logger)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open record store", err, nil)
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		store:   store.New(backend, store.WithNamespace(cfg.Store.Namespace)),
	}, nil
}
