package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/formpilot/agent"
	"github.com/hazyhaar/formpilot/browser"
	"github.com/hazyhaar/formpilot/store"
	"github.com/hazyhaar/formpilot/trainer"
)

// session is an agent plus the resources it owns.
type session struct {
	agent   *agent.Agent
	store   *store.Store
	browser *browser.Manager
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.agent.Close(ctx)
	if s.browser != nil {
		_ = s.browser.Close()
	}
	_ = s.store.Close()
}

// browserConfig maps the file configuration onto the manager's.
func (a *app) browserConfig(headful bool) browser.Config {
	bc := a.cfg.Browser
	stealthPages := !bc.NoStealthPages
	return browser.Config{
		RemoteURL:       bc.Remote,
		Bin:             bc.Bin,
		Headful:         headful || bc.Stealth == "headful",
		Stealth:         &stealthPages,
		ViewportWidth:   bc.ViewportWidth,
		ViewportHeight:  bc.ViewportHeight,
		NavigateTimeout: bc.NavigateTimeout,
		Logger:          a.logger,
	}
}

// isLocalHTML reports whether target names an .html file on disk.
func isLocalHTML(target string) bool {
	if strings.HasPrefix(target, "file://") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(target))
	if ext != ".html" && ext != ".htm" {
		return false
	}
	_, err := os.Stat(target)
	return err == nil
}

// open builds an agent. Local .html targets are parsed offline; anything
// else goes through Chrome.
func (a *app) open(ctx context.Context, target string, headful bool) (*session, error) {
	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s := &session{store: st}

	var pages agent.Pages
	if target != "" && isLocalHTML(target) {
		pages = agent.FilePages(nil, a.logger)
	} else {
		s.browser = browser.NewManager(a.browserConfig(headful))
		pages = agent.BrowserPages(s.browser)
	}

	settings := a.cfg.Settings
	ag, err := agent.New(ctx, agent.Config{
		Store:    st,
		Pages:    pages,
		Settings: &settings,
		Aliases:  a.cfg.Aliases,
		Logger:   a.logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	s.agent = ag
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) fillCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "fill <url|file.html>",
		Short: "Fill the form at a URL, or in a local HTML file",
		Long: `Fill every data field of the page from the stored profile.

For a local .html file the filled document is written to stdout (or --out);
for a URL the fill report is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, args[0], false)
			if err != nil {
				return err
			}
			defer s.close()

			target := args[0]
			rep, err := s.agent.FillForm(ctx, target)
			if err != nil {
				return err
			}
			if !isLocalHTML(target) {
				return printJSON(cmd.OutOrStdout(), rep)
			}

			p, err := s.agent.Current()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			a.logger.Info("formpilot: filled", "file", target, "filled", rep.Filled, "skipped", len(rep.Skipped))
			op, ok := p.(*agent.OfflinePage)
			if !ok {
				return fmt.Errorf("%w: %s is not a local page", errUsage, target)
			}
			return op.Render(w)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the filled HTML to this file")
	return cmd
}

func (a *app) recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <url> <name>",
		Short: "Record interactions in a visible browser until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, "", true)
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.agent.Open(ctx, args[0]); err != nil {
				return err
			}
			id, err := s.agent.StartRecording(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "recording %q (%s), press Ctrl-C to stop\n", args[1], id)
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			m, err := s.agent.StopRecording(stopCtx)
			if len(m.Events) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "nothing recorded")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"name": m.Name, "events": len(m.Events)})
		},
	}
}

func (a *app) playCmd() *cobra.Command {
	var instant, headful bool
	cmd := &cobra.Command{
		Use:   "play <url|file.html> <name>",
		Short: "Replay a recorded macro",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, args[0], headful)
			if err != nil {
				return err
			}
			defer s.close()

			rep, err := s.agent.Play(ctx, args[0], args[1], instant)
			if rep != nil {
				if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&instant, "instant", false, "replay without the recorded delays")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	return cmd
}

func (a *app) trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train <url|file.html>",
		Short: "Fill a page, learn mappings for the fields it skipped, and refill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, args[0], false)
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.agent.FillForm(ctx, args[0]); err != nil {
				return err
			}
			learned, err := s.agent.Train(ctx)
			if errors.Is(err, trainer.ErrNoNewMappings) {
				fmt.Fprintln(cmd.ErrOrStderr(), "no new mappings")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), learned)
		},
	}
}

func (a *app) macrosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macros",
		Short: "Manage recorded macros",
	}
	withAgent := func(fn func(ctx context.Context, ag *agent.Agent, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), "", false)
			if err != nil {
				return err
			}
			defer s.close()
			return fn(cmd.Context(), s.agent, cmd, args)
		}
	}

	var limit int
	runs := &cobra.Command{
		Use:   "runs <name>",
		Short: "Show the latest replays of a macro and its fragile selectors",
		Args:  cobra.ExactArgs(1),
		RunE: withAgent(func(ctx context.Context, ag *agent.Agent, cmd *cobra.Command, args []string) error {
			reports, err := ag.Runs(ctx, args[0], limit)
			if err != nil {
				return err
			}
			fragile, err := ag.FragileSelectors(ctx, args[0], limit, 2)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"runs": reports, "fragile": fragile})
		}),
	}
	runs.Flags().IntVar(&limit, "limit", 20, "number of runs to inspect")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List macro names",
			Args:  cobra.NoArgs,
			RunE: withAgent(func(ctx context.Context, ag *agent.Agent, cmd *cobra.Command, _ []string) error {
				names, err := ag.Macros(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a macro",
			Args:  cobra.ExactArgs(1),
			RunE: withAgent(func(ctx context.Context, ag *agent.Agent, _ *cobra.Command, args []string) error {
				return ag.DeleteMacro(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "rename <from> <to>",
			Short: "Rename a macro",
			Args:  cobra.ExactArgs(2),
			RunE: withAgent(func(ctx context.Context, ag *agent.Agent, _ *cobra.Command, args []string) error {
				return ag.RenameMacro(ctx, args[0], args[1])
			}),
		},
		runs,
	)
	return cmd
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(arg)
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Import or export the profile"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file|->",
			Short: "Replace the profile with a JSON object of strings",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				s, err := a.open(cmd.Context(), "", false)
				if err != nil {
					return err
				}
				defer s.close()
				p, err := s.agent.ImportProfile(cmd.Context(), data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "imported %d keys\n", len(p))
				return nil
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Print the profile as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := a.open(cmd.Context(), "", false)
				if err != nil {
					return err
				}
				defer s.close()
				return printJSON(cmd.OutOrStdout(), s.agent.Profile())
			},
		},
	)
	return cmd
}

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Import or export the settings"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file|->",
			Short: "Replace the settings; unknown keys are rejected",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				s, err := a.open(cmd.Context(), "", false)
				if err != nil {
					return err
				}
				defer s.close()
				_, err = s.agent.ImportSettings(cmd.Context(), data)
				return err
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Print the settings as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := a.open(cmd.Context(), "", false)
				if err != nil {
					return err
				}
				defer s.close()
				return printJSON(cmd.OutOrStdout(), s.agent.Settings())
			},
		},
	)
	return cmd
}
