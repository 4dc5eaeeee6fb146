// CLAUDE:SUMMARY CLI entry point for formpilot: serve the HTTP/MCP agent, or fill, record, replay and train from the shell.
// Command formpilot fills web forms from a profile and records and replays
// interaction macros.
//
// Usage:
//
//	formpilot serve -c formpilot.yaml        # HTTP API (+ MCP over stdio)
//	formpilot fill https://example.com/signup
//	formpilot fill ./signup.html > filled.html
//	formpilot record https://example.com/login login   # Ctrl-C to stop
//	formpilot play https://example.com/login login --instant
//	formpilot train https://example.com/signup
//	formpilot macros list
//	formpilot profile import profile.json
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/formpilot/config"
)

// app carries the state every subcommand shares.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	level  *slog.LevelVar
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{level: new(slog.LevelVar)}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("formpilot: fatal", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "formpilot:", err)
		}
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "formpilot",
		Short:         "Fill web forms from a profile, record and replay macros",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to formpilot.yaml")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides the config file)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.serveCmd(),
		a.fillCmd(),
		a.recordCmd(),
		a.playCmd(),
		a.trainCmd(),
		a.macrosCmd(),
		a.profileCmd(),
		a.settingsCmd(),
	)
	return root
}

// init loads the configuration and sets up the JSON logger on stderr;
// stdout is reserved for command output and the MCP stdio transport.
func (a *app) init() error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(a.configPath); err != nil {
			return err
		}
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.level.Set(cfg.Level())
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: a.level}))
	slog.SetDefault(a.logger)
	return nil
}

var errUsage = errors.New("formpilot: invalid arguments")
