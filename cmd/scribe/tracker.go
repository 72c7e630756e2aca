// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/issue"
	"github.com/invowk/scribe/internal/tracker"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	host string
	port int
	dir  string
}

func newTrackerCommand(app *App) *cobra.Command {
	trackerCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Run the tracker that executes remote commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var opts serveOptions
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a tracker and print its connection token",
		Long: `Start a tracker and print its connection token.

The tracker is an SSH server. Clients authenticate with the printed token
and attach to the command protocol with the "l2l" session command; an
interactive session with a pty gets a shell. Stop it with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.loadConfig(cmd.Context())
			if !cmd.Flags().Changed("host") {
				opts.host = cfg.Tracker.Host
			}
			if !cmd.Flags().Changed("port") {
				opts.port = cfg.Tracker.Port
			}
			return runTrackerServe(cmd.Context(), cmd.OutOrStdout(), app, cfg, opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.host, "host", "", "bind address (default from tracker.host)")
	serveCmd.Flags().IntVar(&opts.port, "port", 0, "listen port, 0 for any (default from tracker.port)")
	serveCmd.Flags().StringVar(&opts.dir, "dir", "", "default working directory for commands (default: current)")
	trackerCmd.AddCommand(serveCmd)

	return trackerCmd
}

func runTrackerServe(ctx context.Context, w io.Writer, app *App, cfg *config.Config, opts serveOptions) error {
	srv, err := tracker.New(tracker.Config{
		Host:           opts.host,
		Port:           opts.port,
		TokenTTL:       cfg.Tracker.TokenTTL,
		Dir:            opts.dir,
		RequestTimeout: cfg.Shell.RequestTimeout,
		Clock:          app.Clock,
		Logger:         app.logger("tracker"),
	})
	if err != nil {
		return startError(opts, err)
	}
	if err := srv.Start(ctx); err != nil {
		return startError(opts, err)
	}
	defer func() { _ = srv.Stop() }()

	info, err := srv.ConnectionInfo("cli")
	if err != nil {
		return err
	}

	fmt.Fprintln(w, TitleStyle.Render("Tracker running"))
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("Address"), info.Addr)
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("Token"), string(info.Token))
	fmt.Fprintf(w, "%s: %s\n", CmdStyle.Render("Expires"), info.ExpireAt.Format(time.RFC3339))
	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render(fmt.Sprintf("  scribe run --tracker %s --token %s -- uname -a", info.Addr, info.Token)))

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-srv.Err():
		if !ok {
			return nil
		}
		return err
	}
}

func startError(opts serveOptions, err error) error {
	return issue.NewErrorContext().
		WithOperation("start tracker").
		WithResource(fmt.Sprintf("%s:%d", opts.host, opts.port)).
		WithSuggestion("Another process may hold the port; try --port 0").
		WithIssue(issue.TrackerStartFailedId).
		Wrap(err).
		BuildError()
}
