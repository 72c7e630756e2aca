// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/scribe/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the scribe command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scribe",
		Short: "Search and replace in documents, locally or through a tracker",
		Long: TitleStyle.Render("scribe") + SubtitleStyle.Render(" - search and replace in documents, locally or through a tracker") + `

Needles are literal text unless written as /pattern/flags, which makes them
ECMAScript regular expressions (flags: i ignore case, m multiline).
Positions are zero-based and written row:column.

` + SubtitleStyle.Render("Examples:") + `
  scribe search TODO main.go          Find the first TODO
  scribe search --all '/fo+/i' a.txt  List every match
  scribe replace '/(\w+)@/' '$1 at' notes.txt
  scribe tracker serve                Start a tracker on 127.0.0.1:2222
  scribe run --token T -- uname -a    Run a command through the tracker`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.loadConfig(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is <user config dir>/scribe/config.cue)")

	rootCmd.AddCommand(newSearchCommand(app))
	rootCmd.AddCommand(newReplaceCommand(app))
	rootCmd.AddCommand(newTrackerCommand(app))
	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	rootCmd.SetIn(app.stdin)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err == nil {
		return
	}

	renderIssue(app.stderr, err, app.verbose)
	os.Exit(statusOf(err))
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderIssue prints the help page linked from err. Suggestions are printed
// always; the full page only in verbose mode.
func renderIssue(w io.Writer, err error, verbose bool) {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.HasSuggestions() {
		fmt.Fprintln(w, formatErrorForDisplay(ae, verbose))
	}
	if !verbose {
		return
	}
	is, ok := issue.IssueOf(err)
	if !ok {
		return
	}
	rendered, renderErr := is.Render("dark")
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}
