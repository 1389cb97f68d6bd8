// Command sgxhist downloads SGX derivatives historical data files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/hazyhaar/sgxhist/sgx"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var version = "dev"

// errFailures makes the process exit 1 after a batch that left failures.
var errFailures = errors.New("some downloads failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errFailures) {
			slog.Error("sgxhist", "error", err)
		}
		os.Exit(1)
	}
}

// run executes one command line and releases the service and log file
// whatever the outcome.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

type app struct {
	configPath string
	output     string
	files      []string
	logFile    string
	journal    string
	ledger     string
	logLevel   string
	maxRetry   int
	quiet      bool

	cfg     *sgx.Config
	logger  *slog.Logger
	logSink io.Closer
	svc     *sgx.Service
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "sgxhist",
		Short:             "Download SGX derivatives historical data files.",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file (default ~/.config/sgxhist.yaml, created when missing)")
	pf.StringVar(&a.output, "output", "", "download directory")
	pf.StringArrayVar(&a.files, "file", nil, "file key to download (td, tds, tc, tcs); repeatable")
	pf.StringVar(&a.logFile, "log-file", "", "log file path")
	pf.StringVar(&a.journal, "journal", "", "failure journal path")
	pf.StringVar(&a.ledger, "ledger", "", "SQLite ledger path (\"off\" disables)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.IntVar(&a.maxRetry, "max-retry", 0, "retries per failed file")
	pf.BoolVar(&a.quiet, "quiet", false, "do not log to stderr")

	root.AddCommand(
		a.dayCmd(),
		a.rangeCmd(),
		a.pastCmd(),
		a.updateCmd(),
		a.retryCmd(),
		a.resolveCmd(),
		a.discoverCmd(),
		a.historyCmd(),
		a.runCmd(),
		a.configCmd(),
		a.mcpCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides, builds the logger
// and opens the service.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, created, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.override(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.openLogger(); err != nil {
		return err
	}
	if created {
		a.logger.Info("sgxhist: default config written", "path", a.configPath)
	}
	a.logger.Info("sgxhist: start", "version", version, "command", cmd.Name(),
		"config", a.configPath, "output", cfg.Output, "files", cfg.DownloadFiles)

	svc, err := sgx.New(cfg, a.logger)
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}

func (a *app) loadConfig() (*sgx.Config, bool, error) {
	if a.configPath != "" {
		cfg, err := sgx.LoadConfigFile(a.configPath)
		return cfg, false, err
	}
	path, err := sgx.DefaultConfigPath()
	if err != nil {
		return nil, false, err
	}
	a.configPath = path
	return sgx.EnsureConfigFile(path)
}

func (a *app) override(cmd *cobra.Command, cfg *sgx.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = a.output
	}
	if flags.Changed("file") {
		cfg.DownloadFiles = a.files
	}
	if flags.Changed("log-file") {
		cfg.LogFile = a.logFile
	}
	if flags.Changed("journal") {
		cfg.Journal = a.journal
	}
	if flags.Changed("ledger") {
		cfg.Ledger = a.ledger
		if a.ledger == "off" {
			cfg.Ledger = ""
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("max-retry") {
		cfg.MaxRetry = a.maxRetry
	}
	if flags.Changed("quiet") {
		cfg.Quiet = a.quiet
	}
}

func (a *app) openLogger() error {
	lvl, err := sgx.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	var sinks []io.Writer
	if !a.cfg.Quiet {
		sinks = append(sinks, os.Stderr)
	}
	if a.cfg.LogFile != "" {
		if dir := filepath.Dir(a.cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("log dir: %w", err)
			}
		}
		f, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		a.logSink = f
		sinks = append(sinks, f)
	}
	w := io.Discard
	if len(sinks) > 0 {
		w = io.MultiWriter(sinks...)
	}
	a.logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
		a.svc = nil
	}
	if a.logSink != nil {
		errs = append(errs, a.logSink.Close())
		a.logSink = nil
	}
	return errors.Join(errs...)
}

// finish prints the summary and turns remaining failures into errFailures.
func (a *app) finish(cmd *cobra.Command, s sgx.Summary) error {
	a.logger.Info("sgxhist: done", "days", s.Days, "attempts", s.Attempts, "failed", s.Failed)
	if err := printJSON(cmd.OutOrStdout(), s); err != nil {
		return err
	}
	if s.Failed > 0 {
		a.logger.Warn("sgxhist: failures recorded", "failed", s.Failed, "journal", a.cfg.Journal)
		return errFailures
	}
	return nil
}

func (a *app) dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day [DATE]",
		Short: "Download one day (YYYYMMDD, today or yesterday; default yesterday).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := "yesterday"
			if len(args) == 1 {
				v = args[0]
			}
			d, err := a.svc.ParseDay(v)
			if err != nil {
				return err
			}
			return a.finish(cmd, a.svc.Day(cmd.Context(), d))
		},
	}
}

func (a *app) rangeCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Download every business day between --start and --end.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.ParseDay(start)
			if err != nil {
				return err
			}
			e, err := a.svc.ParseDay(end)
			if err != nil {
				return err
			}
			return a.finish(cmd, a.svc.Range(cmd.Context(), s, e))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYYMMDD (required)")
	cmd.Flags().StringVar(&end, "end", "yesterday", "last day, YYYYMMDD")
	cmd.MarkFlagRequired("start")
	return cmd
}

func (a *app) pastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "past N",
		Short: "Download the last N days up to yesterday.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("%w: past %q", sgx.ErrInvalidInput, args[0])
			}
			return a.finish(cmd, a.svc.Past(cmd.Context(), n))
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Download yesterday.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.finish(cmd, a.svc.Update(cmd.Context()))
		},
	}
}

func (a *app) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [JOURNAL]",
		Short: "Retry every row of a failure journal and keep the rows that still fail.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			rep, err := a.svc.Retry(cmd.Context(), path)
			if err != nil {
				return err
			}
			a.logger.Info("sgxhist: retry done", "retried", rep.Retried, "succeeded", rep.Succeeded, "remaining", rep.Remaining)
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if rep.Remaining > 0 {
				return errFailures
			}
			return nil
		},
	}
}

type resolveOutput struct {
	Date       string `json:"date"`
	Identifier int    `json:"identifier"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Label      string `json:"label,omitempty"`
	Probes     int    `json:"probes"`
	Error      string `json:"error,omitempty"`
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve DATE",
		Short: "Print the portal identifier of a day without downloading.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.svc.ParseDay(args[0])
			if err != nil {
				return err
			}
			res := a.svc.Resolve(cmd.Context(), d)
			out := resolveOutput{
				Date:       res.Date.Format("20060102"),
				Identifier: res.Identifier,
				Status:     res.Status.String(),
				Reason:     string(res.Reason),
				Label:      res.Label,
				Probes:     res.Probes,
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func (a *app) discoverCmd() *cobra.Command {
	var from, to int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Probe identifiers --from..--to and print those without data.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.svc.Discover(cmd.Context(), from, to, func(id int, excluded bool) {
				a.logger.Debug("sgxhist: probed", "id", id, "excluded", excluded)
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), set.String())
			return err
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "first identifier (required)")
	cmd.Flags().IntVar(&to, "to", 0, "last identifier (required)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the latest download attempts from the ledger.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.svc.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of attempts")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the days section of the config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.RunConfigured(cmd.Context())
			if err != nil {
				return err
			}
			return a.finish(cmd, s)
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file.",
		// Overrides the root hook: no service or log file is needed here.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a config file with the default values.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				var err error
				if path, err = sgx.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			}
			if err := sgx.WriteConfigFile(path, sgx.DefaultConfig()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the sgx tools over MCP on stdin/stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := mcp.NewServer(&mcp.Implementation{Name: "sgxhist", Version: version}, nil)
			a.svc.RegisterMCP(srv)
			a.logger.Info("sgxhist: mcp serving on stdio")
			err := srv.Run(cmd.Context(), &mcp.StdioTransport{})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
