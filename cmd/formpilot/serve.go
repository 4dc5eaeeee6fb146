package main

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/formpilot/agent"
	"github.com/hazyhaar/formpilot/browser"
	"github.com/hazyhaar/formpilot/config"
	"github.com/hazyhaar/formpilot/shield"
	"github.com/hazyhaar/formpilot/store"
)

var version = "dev"

const (
	storePollInterval = time.Second
	storeDebounce     = 300 * time.Millisecond
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and the MCP server over stdio when configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides the config file)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	log := a.logger

	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := browser.NewManager(a.browserConfig(false))
	defer mgr.Close()

	settings := a.cfg.Settings
	ag, err := agent.New(ctx, agent.Config{
		Store:    st,
		Pages:    agent.BrowserPages(mgr),
		Settings: &settings,
		Aliases:  a.cfg.Aliases,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ag.Close(cctx); err != nil {
			log.Warn("formpilot: close agent", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           shield.Wrap(ag.Handler(), shield.Config{AllowRemote: a.cfg.HTTP.AllowRemote, Exempt: []string{"/healthz"}}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	g.Go(func() error {
		log.Info("formpilot: http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if a.cfg.MCP.Transport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: a.cfg.MCP.Name, Version: version}, nil)
		ag.RegisterMCP(mcpSrv)
		g.Go(func() error {
			log.Info("formpilot: mcp on stdio", "name", a.cfg.MCP.Name)
			err := mcpSrv.Run(ctx, &mcp.StdioTransport{})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if a.configPath != "" {
		fileSettings := a.cfg.Settings
		g.Go(func() error {
			return config.Watch(ctx, a.configPath, log, func(cfg *config.Config) {
				a.level.Set(cfg.Level())
				// Settings edited through the API survive unrelated file edits.
				if reflect.DeepEqual(cfg.Settings, fileSettings) {
					return
				}
				fileSettings = cfg.Settings
				if err := ag.SetSettings(ctx, cfg.Settings); err != nil {
					log.Error("formpilot: apply reloaded settings", "error", err)
				}
			})
		})
	}

	g.Go(func() error {
		err := ag.WatchStore(ctx, storePollInterval, storeDebounce)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}
