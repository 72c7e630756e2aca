// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"io"
	"os"
	"runtime"
	"testing"
	"time"
)

// DefaultTimeout bounds Context and Eventually when no timeout is given.
const DefaultTimeout = 10 * time.Second

// Stopper is implemented by servers.
type Stopper interface {
	Stop() error
}

// MustSetenv sets key to value and returns a function restoring the previous
// state. Tests that use it must not run in parallel.
func MustSetenv(t testing.TB, key, value string) func() {
	t.Helper()
	original, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	return func() {
		var err error
		if had {
			err = os.Setenv(key, original)
		} else {
			err = os.Unsetenv(key)
		}
		if err != nil {
			t.Errorf("failed to restore env %s: %v", key, err)
		}
	}
}

// SetConfigHome points os.UserConfigDir at dir for the rest of the test.
func SetConfigHome(t testing.TB, dir string) {
	t.Helper()
	switch runtime.GOOS {
	case "windows":
		t.Cleanup(MustSetenv(t, "AppData", dir))
	case "darwin":
		t.Cleanup(MustSetenv(t, "HOME", dir))
	default:
		t.Cleanup(MustSetenv(t, "XDG_CONFIG_HOME", dir))
	}
}

// MustClose closes c and fails the test on error.
func MustClose(t testing.TB, c io.Closer) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
}

// MustStop stops s. Shutdown errors are logged, not fatal.
func MustStop(t testing.TB, s Stopper) {
	t.Helper()
	if err := s.Stop(); err != nil {
		t.Logf("warning: stop returned error: %v", err)
	}
}

// DeferStop returns a function for t.Cleanup or defer that stops s.
func DeferStop(t testing.TB, s Stopper) func() {
	t.Helper()
	return func() {
		t.Helper()
		MustStop(t, s)
	}
}

// Context returns a context cancelled after timeout (DefaultTimeout when
// zero) or at the end of the test.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Eventually polls cond every few milliseconds and fails the test when it is
// still false after timeout (DefaultTimeout when zero).
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
