// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/editor"
	"github.com/invowk/scribe/internal/searchsession"
	"github.com/invowk/scribe/internal/shell"
	"github.com/invowk/scribe/internal/textsearch"
	"github.com/invowk/scribe/pkg/textdoc"

	"github.com/spf13/cobra"
)

type (
	replaceOptions struct {
		dryRun        bool
		caseSensitive bool
		remote        remoteFlags
	}

	// fileStore reads and writes the documents being rewritten.
	fileStore interface {
		Read(ctx context.Context, path string) (string, error)
		Write(ctx context.Context, path, content string) error
	}

	localFiles struct{}

	remoteFiles struct {
		client *shell.Client
	}
)

func newReplaceCommand(app *App) *cobra.Command {
	var opts replaceOptions
	replaceCmd := &cobra.Command{
		Use:   "replace <needle> <replacement> [file...]",
		Short: "Replace every match of a needle",
		Long: `Replace every match of a needle.

Files are rewritten in place; without files, stdin is rewritten to stdout.
For regular-expression needles, $1-style references in the replacement
expand to the match's groups. With --tracker, files are read and written on
the tracker host.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.loadConfig(cmd.Context())
			if !cmd.Flags().Changed("case-sensitive") {
				opts.caseSensitive = cfg.Search.CaseSensitive
			}
			return runReplace(cmd.Context(), cmd.OutOrStdout(), app, cfg, args[0], args[1], args[2:], opts)
		},
	}

	replaceCmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "report replacements without writing")
	replaceCmd.Flags().BoolVarP(&opts.caseSensitive, "case-sensitive", "s", false, "match case exactly (default from search.case_sensitive)")
	opts.remote.register(replaceCmd, "edit files on the tracker at host:port")
	return replaceCmd
}

func runReplace(ctx context.Context, w io.Writer, app *App, cfg *config.Config, needleArg, replacement string, paths []string, opts replaceOptions) error {
	needle, err := parseNeedle(needleArg)
	if err != nil {
		return err
	}

	var store fileStore = localFiles{}
	if opts.remote.addr != "" {
		if len(paths) == 0 {
			return errors.New("--tracker needs at least one file")
		}
		r, err := app.connect(ctx, cfg, &opts.remote)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		store = remoteFiles{client: r.client}
	}

	if len(paths) == 0 {
		sources, err := readSources(app.stdin, nil)
		if err != nil {
			return err
		}
		_, out, err := replaceInText(app, cfg, sources[0].text, needle, replacement, opts.caseSensitive)
		if err != nil {
			return searchError(stdinName, err)
		}
		_, err = io.WriteString(w, out)
		return err
	}

	for _, path := range paths {
		text, err := store.Read(ctx, path)
		if err != nil {
			return err
		}
		n, out, err := replaceInText(app, cfg, text, needle, replacement, opts.caseSensitive)
		if err != nil {
			return searchError(path, err)
		}

		switch {
		case n == 0:
			fmt.Fprintf(w, "%s: %s\n", LocationStyle.Render(path), SubtitleStyle.Render("no matches"))
		case opts.dryRun:
			fmt.Fprintf(w, "%s: would replace %d match(es)\n", LocationStyle.Render(path), n)
		default:
			if err := store.Write(ctx, path, out); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s: %s\n", LocationStyle.Render(path), SuccessStyle.Render(fmt.Sprintf("replaced %d match(es)", n)))
		}
	}
	return nil
}

// replaceInText runs a search session over text and replaces every match.
func replaceInText(app *App, cfg *config.Config, text string, needle textsearch.Needle, replacement string, caseSensitive bool) (int, string, error) {
	ed := editor.New(text)
	ctrl := searchsession.New(ed, searchsession.Options{
		CaseSensitive: caseSensitive,
		MaxMatches:    cfg.Search.MaxMatches,
		Markers:       markerPolicy(cfg),
		Clock:         app.Clock,
	})
	ctrl.StartSession(textdoc.Pos(0, 0))

	if r := ctrl.SetNeedle(needle); r == nil || r.Found == nil {
		ctrl.Cancel(false)
		return 0, text, nil
	}
	n, err := ctrl.ReplaceAll(replacement)
	if err != nil {
		ctrl.Cancel(false)
		return 0, text, err
	}
	return n, ed.Text(), nil
}

func (localFiles) Read(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fileError("read file", path, err)
	}
	return string(data), nil
}

func (localFiles) Write(_ context.Context, path, content string) error {
	return writeFile(path, content)
}

func (f remoteFiles) Read(ctx context.Context, path string) (string, error) {
	return f.client.ReadFile(ctx, path)
}

func (f remoteFiles) Write(ctx context.Context, path, content string) error {
	return f.client.WriteFile(ctx, path, content)
}
