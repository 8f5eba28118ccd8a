// Command docreader indexes plain-text document exports, searches them and
// serves the reader API.
//
//	docreader index  [flags] FILE...
//	docreader search [flags] FILE QUERY
//	docreader list   [flags] [PATTERN]
//	docreader clear  [flags]
//	docreader serve  [flags] [FILE...]
//	docreader events [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/workspace"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"golang.org/x/term"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

// env is what every subcommand gets after the shared flags are parsed.
type env struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	stdout io.Writer
	stderr io.Writer
	tty    bool
	flags  *cmdFlags
}

// cmdFlags holds the per-command flags; each command registers only the
// ones it reads.
type cmdFlags struct {
	wholeWords    bool
	caseSensitive bool
	maxResults    int
	port          int
	summary       bool
	fromStart     bool
}

func registerFlags(name string, fs *flag.FlagSet) *cmdFlags {
	f := &cmdFlags{}
	switch name {
	case "search":
		fs.BoolVar(&f.wholeWords, "whole", false, "match whole words only")
		fs.BoolVar(&f.caseSensitive, "case", false, "match case")
		fs.IntVar(&f.maxResults, "max", 0, "maximum results (0 uses search.maxResults)")
	case "serve":
		fs.IntVar(&f.port, "port", 0, "override server.port")
	case "events":
		fs.BoolVar(&f.summary, "summary", false, "print an aggregate summary on exit instead of each event")
		fs.BoolVar(&f.fromStart, "from-start", false, "read the topic from the oldest retained event")
	}
	return f
}

var commands = []command{
	{name: "index", usage: "index [flags] FILE...", run: runIndex},
	{name: "search", usage: "search [flags] FILE QUERY", run: runSearch},
	{name: "list", usage: "list [flags] [PATTERN]", run: runList},
	{name: "clear", usage: "clear [flags]", run: runClear},
	{name: "serve", usage: "serve [flags] [FILE...]", run: runServe},
	{name: "events", usage: "events [flags]", run: runEvents},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return 2
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 2
	}

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("DR_CONFIG"), "path to a YAML or TOML config file")
	logLevel := fs.String("log-level", "", "override logging.level (debug, info, warn, error)")
	opts := registerFlags(cmd.name, fs)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: docreader %s\n\n", cmd.usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	switch {
	case *logLevel != "":
		cfg.Logging.Level = *logLevel
	case cmd.name != "serve" && os.Getenv("DR_LOGGING_LEVEL") == "" && cfg.Logging.Level == "info":
		// one-shot commands keep stderr for progress and problems
		cfg.Logging.Level = "warn"
	}
	closeLog := setupLogging(cfg.Logging, stderr)
	defer closeLog()

	ws, err := workspace.New(cfg, workspace.WithMetrics(processMetrics()))
	if err != nil {
		fmt.Fprintf(stderr, "failed to start: %v\n", err)
		return 1
	}
	e := &env{cfg: cfg, ws: ws, stdout: stdout, stderr: stderr, tty: isTerminal(stderr), flags: opts}
	runErr := cmd.run(context.Background(), e, fs.Args())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := ws.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "docreader %s: %v\n", cmd.name, runErr)
		if _, ok := runErr.(usageError); ok {
			fs.Usage()
			return 2
		}
		return 1
	}
	return 0
}

type usageError string

func (u usageError) Error() string { return string(u) }

// processMetrics registers the collectors on the default registry once.
var processMetrics = sync.OnceValue(metrics.New)

// setupLogging sends logs to the rotating file when one is configured and
// to stderr otherwise. Format "auto" picks text on a terminal and JSON
// elsewhere.
func setupLogging(cfg config.LoggingConfig, stderr io.Writer) func() {
	level := cfg.Level
	format := cfg.Format
	if format == "auto" {
		format = "json"
		if isTerminal(stderr) {
			format = "text"
		}
	}
	if cfg.File != "" {
		file := logger.RotatingFile(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		logger.Setup(level, format, file)
		return func() { _ = file.Close() }
	}
	logger.Setup(level, format, stderr)
	return func() {}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: docreader <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\n", c.usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "run 'docreader <command> -h' for the flags of a command")
}
