// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/issue"
	"github.com/invowk/scribe/internal/shell"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const stdinChunkSize = 32 * 1024

type runOptions struct {
	remote    remoteFlags
	cwd       string
	env       map[string]string
	forwardIn bool
}

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command on the tracker host",
		Long: `Run a command on the tracker host.

Output is streamed as it arrives and scribe exits with the command's exit
code. The command line is interpreted by a POSIX shell on the tracker.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.loadConfig(cmd.Context())
			return runRemote(cmd.Context(), app, cfg, strings.Join(args, " "), opts)
		},
	}
	opts.remote.register(runCmd, "tracker host:port (default from tracker.host and tracker.port)")
	runCmd.Flags().StringVar(&opts.cwd, "cwd", "", "working directory on the tracker host")
	runCmd.Flags().StringToStringVarP(&opts.env, "env", "e", nil, "extra environment variables (KEY=VALUE)")
	runCmd.Flags().BoolVarP(&opts.forwardIn, "stdin", "i", false, "forward local stdin to the command")
	return runCmd
}

func runRemote(ctx context.Context, app *App, cfg *config.Config, command string, opts runOptions) error {
	r, err := app.connect(ctx, cfg, &opts.remote)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	cmd := r.client.Command(command)
	unsubscribe := cmd.Subscribe(func(ev shell.Event) {
		switch ev.Kind {
		case shell.EventStdout:
			_, _ = io.WriteString(app.stdout, ev.Chunk)
		case shell.EventStderr:
			_, _ = io.WriteString(app.stderr, ev.Chunk)
		}
	})
	defer unsubscribe()

	if err := cmd.Spawn(ctx, shell.Instructions{Env: opts.env, Cwd: opts.cwd}); err != nil {
		return remoteError(command, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		_, err := cmd.WhenDone().Wait(gctx)
		return err
	})
	g.Go(func() error {
		if !opts.forwardIn {
			return cmd.CloseStdin(gctx)
		}
		return pumpStdin(gctx, app.stdin, cmd)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return remoteError(command, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	code, ok := cmd.ExitCode()
	if !ok {
		return remoteError(command, errors.New("command ended without an exit code"))
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// pumpStdin forwards in to the command until EOF, then closes its stdin. The
// blocking read runs on its own goroutine so ctx can end the pump.
func pumpStdin(ctx context.Context, in io.Reader, cmd *shell.Command) error {
	chunks := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, stdinChunkSize)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				select {
				case chunks <- string(buf[:n]):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk := <-chunks:
			if err := cmd.WriteToStdin(ctx, chunk); err != nil {
				return err
			}
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read stdin: %w", err)
			}
			return cmd.CloseStdin(ctx)
		}
	}
}

func remoteError(command string, err error) error {
	return issue.NewErrorContext().
		WithOperation("run remote command").
		WithResource(command).
		WithSuggestion("Run with --verbose to see the tracker conversation").
		WithIssue(issue.RemoteCommandFailedId).
		Wrap(err).
		BuildError()
}
