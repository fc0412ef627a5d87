package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/otadump/internal/config"
	"github.com/jchantrell/otadump/internal/errdefs"
	"github.com/jchantrell/otadump/internal/utils"
)

const (
	exitOK          = 0
	exitUsage       = 1
	exitMissingPath = 2
	exitFailure     = 3
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// flags are the command-line overrides of config.Config.
type flags struct {
	cfgFile     string
	operations  bool
	logLevel    string
	logFormat   string
	mmap        bool
	bufferSize  int
	dbPath      string
	savePayload string
	noProgress  bool
	headers     []string
}

type app struct {
	cfg    *config.Config
	flags  flags
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "otadump [-l] <path-or-url>",
		Short: "Dump the manifest of an Android OTA update payload",
		Long: `otadump prints the manifest of an update_engine payload as JSON.

The input is a payload.bin or an OTA zip containing a stored payload.bin,
given as a local path or an http(s) URL. Remote files are read with HTTP
range requests, so only the bytes needed for the manifest are downloaded.`,
		Args:              exactArgs(1),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runDump,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.cfgFile, "config", "", "config file (default is otadump.yaml in home directory or pwd)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format (text, json)")
	pf.BoolVar(&a.flags.mmap, "mmap", false, "memory-map local files")
	pf.IntVar(&a.flags.bufferSize, "buffer-size", 0, "read cache block size in bytes, 0 disables the cache")
	pf.BoolVar(&a.flags.noProgress, "no-progress", false, "disable progress bar")
	pf.StringArrayVar(&a.flags.headers, "header", nil, "extra HTTP request header as KEY=VALUE (repeatable)")

	f := rootCmd.Flags()
	f.BoolVarP(&a.flags.operations, "operations", "l", false, "include per-partition install operations")
	f.StringVarP(&a.flags.dbPath, "database", "d", "", "also store the manifest in this SQLite database")
	f.StringVar(&a.flags.savePayload, "save-payload", "", "copy the payload bytes to this file")

	rootCmd.AddCommand(a.newEntriesCmd())

	return rootCmd
}

// exactArgs is cobra.ExactArgs with the error marked as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), cmd.UsageString())
			return usageError(err)
		}
		return nil
	}
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.flags.cfgFile)
	if err != nil {
		return usageError(fmt.Errorf("failed to load configuration: %w", err))
	}

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("operations") {
		cfg.ShowOperations = a.flags.operations
	}
	if changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = a.flags.logFormat
	}
	if changed("mmap") {
		cfg.Mmap = a.flags.mmap
	}
	if changed("buffer-size") {
		cfg.BufferSize = a.flags.bufferSize
	}
	if changed("database") {
		cfg.Database = a.flags.dbPath
	}
	if changed("no-progress") {
		cfg.NoProgress = a.flags.noProgress
	}
	for _, def := range a.flags.headers {
		key, value, err := utils.ParseHeader(def)
		if err != nil {
			return usageError(err)
		}
		if cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = make(map[string]string)
		}
		cfg.HTTP.Headers[key] = value
	}

	if err := cfg.Validate(); err != nil {
		return usageError(fmt.Errorf("invalid configuration: %w", err))
	}
	a.cfg = cfg

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(a.stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(a.stderr, &tint.Options{
			Level: level,
		})
	}
	slog.SetDefault(slog.New(handler))

	slog.Debug("Configuration",
		"show_operations", cfg.ShowOperations,
		"mmap", cfg.Mmap,
		"buffer_size", cfg.BufferSize,
		"cache_blocks", cfg.CacheBlocks,
		"database", cfg.Database,
		"log_level", cfg.LogLevel,
		"log_format", cfg.LogFormat)

	return nil
}

// exitCode maps an error returned by the root command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		if kind := errdefs.Kind(err); kind != nil {
			slog.Debug("Dump failed", "kind", kind.Error())
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
