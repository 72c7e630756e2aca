// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/issue"
	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/shell"

	"github.com/spf13/cobra"
)

// TokenEnv supplies the tracker token when --token is omitted.
const TokenEnv = "SCRIBE_TOKEN"

// remoteFlags are the tracker connection flags shared by replace and run.
type remoteFlags struct {
	addr  string
	token string
}

func (f *remoteFlags) register(cmd *cobra.Command, addrUsage string) {
	cmd.Flags().StringVar(&f.addr, "tracker", "", addrUsage)
	cmd.Flags().StringVar(&f.token, "token", "", "tracker token (default $"+TokenEnv+")")
}

// address returns --tracker, falling back to the configured tracker.
func (f *remoteFlags) address(cfg *config.Config) string {
	if f.addr != "" {
		return f.addr
	}
	return net.JoinHostPort(cfg.Tracker.Host, strconv.Itoa(cfg.Tracker.Port))
}

func (f *remoteFlags) tokenValue() string {
	if f.token != "" {
		return f.token
	}
	return os.Getenv(TokenEnv)
}

// remote is an open tracker connection.
type remote struct {
	peer   *l2l.Peer
	client *shell.Client
}

// connect dials the tracker and returns a shell client over it.
func (a *App) connect(ctx context.Context, cfg *config.Config, f *remoteFlags) (*remote, error) {
	addr := f.address(cfg)
	token := f.tokenValue()
	if token == "" {
		return nil, issue.NewErrorContext().
			WithOperation("connect to tracker").
			WithResource(addr).
			WithSuggestion("Pass --token or set " + TokenEnv).
			WithSuggestion("'scribe tracker serve' prints a token when it starts").
			WithIssue(issue.TrackerUnreachableId).
			Wrap(errors.New("no token")).
			BuildError()
	}

	peer, err := a.Dial(ctx, l2l.DialConfig{
		Addr:  addr,
		Token: token,
		Peer: l2l.Config{
			RequestTimeout: cfg.Shell.RequestTimeout,
			Logger:         a.logger("l2l"),
		},
	})
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("connect to tracker").
			WithResource(addr).
			WithSuggestion("Check that 'scribe tracker serve' is running at this address").
			WithSuggestion("Tokens expire; ask the tracker for a fresh one").
			WithIssue(issue.TrackerUnreachableId).
			Wrap(err).
			BuildError()
	}
	return &remote{peer: peer, client: shell.NewClient(peer, a.servicesConfig(cfg))}, nil
}

func (r *remote) Close() error {
	return r.peer.Close()
}
