// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/issue"
	"github.com/invowk/scribe/internal/testutil"
	"github.com/invowk/scribe/internal/textsearch"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestSearchCommand(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "a.txt", "foo bar\nbaz Foo\nfoo\n")

	tests := []struct {
		name     string
		args     []string
		want     []string
		wantCode int
	}{
		{
			name: "first match",
			args: []string{"search", "foo", path},
			want: []string{path + ":0:0: foo bar"},
		},
		{
			name: "from position",
			args: []string{"search", "--from", "0:1", "foo", path},
			want: []string{path + ":1:4: baz Foo"},
		},
		{
			name: "case sensitive",
			args: []string{"search", "-s", "--from", "0:1", "foo", path},
			want: []string{path + ":2:0: foo"},
		},
		{
			name: "backwards from end",
			args: []string{"search", "-b", "bar", path},
			want: []string{path + ":0:4: foo bar"},
		},
		{
			name: "all",
			args: []string{"search", "--all", "foo", path},
			want: []string{path + ":0:0: foo bar", path + ":1:4: baz Foo", path + ":2:0: foo"},
		},
		{
			name: "all in range",
			args: []string{"search", "--all", "--range", "1:0-2:3", "foo", path},
			want: []string{path + ":1:4: baz Foo", path + ":2:0: foo"},
		},
		{
			name: "regex",
			args: []string{"search", "--all", "/ba[rz]/", path},
			want: []string{path + ":0:4: foo bar", path + ":1:0: baz Foo"},
		},
		{
			name:     "no match",
			args:     []string{"search", "qux", path},
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := runCLI(t, Dependencies{}, tt.args...)
			if code := exitCode(t, res.err); code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err: %v)", code, tt.wantCode, res.err)
			}
			got := strings.Split(strings.TrimSuffix(res.stdout, "\n"), "\n")
			if len(tt.want) == 0 {
				if res.stdout != "" {
					t.Errorf("stdout = %q, want empty", res.stdout)
				}
				return
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("stdout lines = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchReadsStdin(t *testing.T) {
	t.Parallel()

	res := runCLI(t, Dependencies{Stdin: strings.NewReader("one\ntwo\n")}, "search", "two")
	if res.err != nil {
		t.Fatalf("search error = %v", res.err)
	}
	if res.stdout != stdinName+":1:0: two\n" {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestSearchCaseSensitiveFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Search.CaseSensitive = true
	path := writeTemp(t, "a.txt", "Foo\n")

	res := runCLI(t, Dependencies{Config: staticConfig{cfg: cfg}}, "search", "foo", path)
	if code := exitCode(t, res.err); code != 1 {
		t.Errorf("exit code = %d, want 1 with case-sensitive config", code)
	}
	res = runCLI(t, Dependencies{Config: staticConfig{cfg: cfg}}, "search", "--case-sensitive=false", "foo", path)
	if res.err != nil {
		t.Errorf("flag should override config, got %v", res.err)
	}
}

func TestSearchErrors(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "a.txt", "aaaa\n")
	small := config.DefaultConfig()
	small.Search.MaxMatches = 2

	t.Run("invalid regex", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, Dependencies{}, "search", "/(unclosed/", path)
		if !errors.Is(res.err, textsearch.ErrInvalidNeedle) {
			t.Errorf("error = %v, want ErrInvalidNeedle", res.err)
		}
		if is, ok := issue.IssueOf(res.err); !ok || is.Id() != issue.InvalidNeedleId {
			t.Error("error should link the invalid needle page")
		}
	})

	t.Run("empty needle", func(t *testing.T) {
		t.Parallel()
		if res := runCLI(t, Dependencies{}, "search", "", path); res.err == nil {
			t.Error("empty needle should fail")
		}
	})

	t.Run("unbounded", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, Dependencies{Config: staticConfig{cfg: small}}, "search", "--all", "a", path)
		if !errors.Is(res.err, textsearch.ErrUnboundedSearch) {
			t.Errorf("error = %v, want ErrUnboundedSearch", res.err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, Dependencies{}, "search", "a", filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(res.err, os.ErrNotExist) {
			t.Errorf("error = %v, want os.ErrNotExist", res.err)
		}
		if is, ok := issue.IssueOf(res.err); !ok || is.Id() != issue.FileNotFoundId {
			t.Error("error should link the file-not-found page")
		}
	})

	t.Run("bad position", func(t *testing.T) {
		t.Parallel()
		if res := runCLI(t, Dependencies{}, "search", "--from", "x", "a", path); res.err == nil {
			t.Error("--from x should fail")
		}
	})
}

func TestSearchWatch(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "a.txt", "nothing here\n")
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan cliResult, 1)
	go func() {
		done <- runCLIContext(ctx, t, Dependencies{}, stdout, stderr,
			"search", "--watch", "--debounce", "50ms", "needle", path)
	}()

	testutil.Eventually(t, 5*time.Second, func() bool {
		return strings.Contains(stderr.String(), "watching for changes")
	}, "watcher did not start")
	if stdout.String() != "" {
		t.Errorf("initial stdout = %q, want empty", stdout.String())
	}

	if err := os.WriteFile(path, []byte("a needle here\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return strings.Contains(stdout.String(), path+":0:2: a needle here")
	}, "changed file was not searched again")
	if !strings.Contains(stdout.String(), "changed: "+path) {
		t.Errorf("stdout = %q, want a changed header", stdout.String())
	}

	cancel()
	select {
	case res := <-done:
		if res.err != nil {
			t.Errorf("search --watch error = %v, want nil after cancel", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search --watch did not stop after cancel")
	}
}

func TestSearchWatchRejectsStdin(t *testing.T) {
	t.Parallel()

	res := runCLI(t, Dependencies{}, "search", "--watch", "x")
	if res.err == nil || !strings.Contains(res.err.Error(), "--watch") {
		t.Errorf("error = %v, want a --watch usage error", res.err)
	}
}
