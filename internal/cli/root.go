// Package cli implements analysisctl, a terminal front end that drives the
// same reconciler as the web console.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/client"
	"github.com/cuongbtq/analysis-console/internal/config"
	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/cuongbtq/analysis-console/internal/symbols"
	"github.com/cuongbtq/analysis-console/shared/logger"
	"github.com/spf13/cobra"
)

// DefaultBackendURL is used when neither a config file nor a flag names one
const DefaultBackendURL = "http://localhost:8000"

// Backend is the analysis API surface the CLI drives
type Backend interface {
	poller.Backend
	symbols.Source
}

// Options wires the CLI to its environment
type Options struct {
	Out io.Writer
	Err io.Writer

	// Logger overrides --log-level when set
	Logger *slog.Logger
}

type app struct {
	opts Options

	cfgPath  string
	baseURL  string
	logLevel string
	interval time.Duration

	cfg     *config.Config
	logger  *slog.Logger
	backend Backend
}

// NewRootCmd builds the analysisctl command tree
func NewRootCmd(opts Options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:          "analysisctl",
		Short:        "Run stock analyses against the analysis backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}
	if opts.Err != nil {
		root.SetErr(opts.Err)
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", os.Getenv("ANALYSISCTL_CONFIG_PATH"), "Path to configuration file")
	flags.StringVar(&a.baseURL, "backend-url", os.Getenv("ANALYSIS_BACKEND_URL"), "Analysis backend base URL")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.DurationVar(&a.interval, "interval", 0, "Progress polling interval (default from config)")

	root.AddCommand(RunCmd(a))
	root.AddCommand(SymbolsCmd(a))
	root.AddCommand(ModesCmd())

	return root
}

// setup loads configuration and builds the backend client
func (a *app) setup() error {
	cfg := &config.Config{}
	if a.cfgPath != "" {
		loaded, err := config.Load(a.cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg.ApplyDefaults()
	}

	if a.baseURL != "" {
		cfg.Backend.BaseURL = a.baseURL
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	if a.interval > 0 {
		cfg.Poller.Interval = a.interval
	}

	if err := cfg.ValidateCLIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	a.logger = a.opts.Logger
	if a.logger == nil {
		l, err := logger.New(&logger.Config{
			Level:      a.logLevel,
			Format:     "console",
			Output:     "stderr",
			TimeFormat: time.TimeOnly,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = l.Logger
	}

	backend, err := client.NewClient(&client.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		UserAgent: cfg.Backend.UserAgent,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis backend client: %w", err)
	}
	a.backend = backend

	return nil
}
