// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/issue"
	"github.com/invowk/scribe/internal/textsearch"
	"github.com/invowk/scribe/internal/watch"
	"github.com/invowk/scribe/pkg/textdoc"

	"github.com/spf13/cobra"
)

type searchOptions struct {
	backwards     bool
	caseSensitive bool
	all           bool
	from          string
	within        string
	watch         bool
	debounce      time.Duration
}

func newSearchCommand(app *App) *cobra.Command {
	var opts searchOptions
	searchCmd := &cobra.Command{
		Use:   "search <needle> [file...]",
		Short: "Find a needle in files or stdin",
		Long: `Find a needle in files or stdin.

Without --all, prints the first match at or after --from (or before it with
--backwards). With --all, prints every match. Exits with status 1 when
nothing matched.

With --watch, keeps running after the first pass and searches each file again
whenever it changes, until interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.loadConfig(cmd.Context())
			if !cmd.Flags().Changed("case-sensitive") {
				opts.caseSensitive = cfg.Search.CaseSensitive
			}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), app, cfg, args[0], args[1:], opts)
		},
	}

	searchCmd.Flags().BoolVarP(&opts.backwards, "backwards", "b", false, "search towards the document start")
	searchCmd.Flags().BoolVarP(&opts.caseSensitive, "case-sensitive", "s", false, "match case exactly (default from search.case_sensitive)")
	searchCmd.Flags().BoolVarP(&opts.all, "all", "a", false, "print every match")
	searchCmd.Flags().StringVar(&opts.from, "from", "", "start position as row:column")
	searchCmd.Flags().StringVar(&opts.within, "range", "", "restrict matches to row:column-row:column")
	searchCmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "search again whenever a file changes")
	searchCmd.Flags().DurationVar(&opts.debounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is searched again")
	return searchCmd
}

func runSearch(ctx context.Context, w io.Writer, app *App, cfg *config.Config, needleArg string, paths []string, opts searchOptions) error {
	needle, err := parseNeedle(needleArg)
	if err != nil {
		return err
	}

	query := textsearch.Query{
		Needle:        needle,
		Backwards:     opts.backwards,
		CaseSensitive: opts.caseSensitive,
	}
	if opts.from != "" {
		if query.Start, err = textdoc.ParsePosition(opts.from); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if opts.within != "" {
		r, err := textdoc.ParseRange(opts.within)
		if err != nil {
			return fmt.Errorf("--range: %w", err)
		}
		query.InRange = &r
	}

	if opts.watch && (len(paths) == 0 || slices.Contains(paths, "-")) {
		return errors.New("--watch needs at least one file and cannot read stdin")
	}

	sources, err := readSources(app.stdin, paths)
	if err != nil {
		return err
	}
	total, err := searchSources(w, cfg, sources, query, opts)
	if err != nil {
		return err
	}

	if opts.watch {
		return watchSearch(ctx, w, app, cfg, paths, query, opts)
	}
	if total == 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("no match for %s", needle)}
	}
	return nil
}

// searchSources prints the matches of query in every source and returns how
// many were printed.
func searchSources(w io.Writer, cfg *config.Config, sources []source, query textsearch.Query, opts searchOptions) (int, error) {
	total := 0
	for _, src := range sources {
		buf := textdoc.NewBuffer(src.text)
		searcher := textsearch.New(buf, textsearch.WithMaxMatches(cfg.Search.MaxMatches))
		q := query
		if opts.backwards && opts.from == "" {
			q.Start = buf.EndPosition()
		}

		var matches []textsearch.Match
		if opts.all {
			var err error
			matches, err = searcher.SearchForAll(q)
			if err != nil {
				return total, searchError(src.name, err)
			}
		} else if m := searcher.Search(q); m != nil {
			matches = []textsearch.Match{*m}
		}

		for _, m := range matches {
			printMatch(w, src.name, buf, m)
		}
		total += len(matches)
	}
	return total, nil
}

// watchSearch repeats the search over each changed file until ctx is done.
// Per-file failures are reported and watching continues.
func watchSearch(ctx context.Context, w io.Writer, app *App, cfg *config.Config, paths []string, query textsearch.Query, opts searchOptions) error {
	logger := app.logger("watch")
	watcher, err := watch.New(watch.Config{
		Files:    paths,
		Debounce: opts.debounce,
		Logger:   logger,
		OnChange: func(_ context.Context, changed []string) error {
			fmt.Fprintln(w, SubtitleStyle.Render("changed: "+strings.Join(changed, ", ")))
			sources, err := readSources(app.stdin, changed)
			if err != nil {
				return err
			}
			total, err := searchSources(w, cfg, sources, query, opts)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Fprintln(w, SubtitleStyle.Render("no match"))
			}
			return nil
		},
	})
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("watch files").
			WithResource(strings.Join(paths, ", ")).
			WithSuggestion("Every watched path must be an existing regular file").
			Wrap(err).
			BuildError()
	}

	logger.Info("watching for changes", "files", len(paths))
	return watcher.Run(ctx)
}

// parseNeedle rejects input the searcher would silently never match.
func parseNeedle(input string) (textsearch.Needle, error) {
	needle := textsearch.ParseNeedle(input)
	if needle.IsEmpty() {
		return needle, errors.New("needle must not be empty")
	}
	if err := needle.Err(); err != nil {
		return needle, issue.NewErrorContext().
			WithOperation("parse needle").
			WithResource(input).
			WithSuggestion("Regular expressions use ECMAScript syntax: /pattern/flags").
			WithSuggestion("Supported flags are i and m").
			WithIssue(issue.InvalidNeedleId).
			Wrap(err).
			BuildError()
	}
	return needle, nil
}

func searchError(name string, err error) error {
	if errors.Is(err, textsearch.ErrUnboundedSearch) {
		return issue.NewErrorContext().
			WithOperation("search").
			WithResource(name).
			WithSuggestion("Make the needle more specific; zero-width patterns match everywhere").
			WithSuggestion("Raise search.max_matches if this many matches is expected").
			WithIssue(issue.UnboundedSearchId).
			Wrap(err).
			BuildError()
	}
	return err
}

// printMatch writes "name:row:column: line" with the match highlighted. For a
// match spanning lines only its first line is shown.
func printMatch(w io.Writer, name string, buf *textdoc.Buffer, m textsearch.Match) {
	start, end := m.Range.Start, m.Range.End
	line := []rune(buf.Line(start.Row))
	endCol := len(line)
	if end.Row == start.Row {
		endCol = min(end.Column, len(line))
	}
	startCol := min(start.Column, len(line))

	var sb strings.Builder
	sb.WriteString(string(line[:startCol]))
	sb.WriteString(MatchStyle.Render(string(line[startCol:endCol])))
	sb.WriteString(string(line[endCol:]))

	fmt.Fprintf(w, "%s: %s\n", LocationStyle.Render(fmt.Sprintf("%s:%s", name, start)), sb.String())
}
