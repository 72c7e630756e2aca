// SPDX-License-Identifier: MPL-2.0

//go:build windows

package tracker

import (
	"errors"
	"io"
	"os"
	"os/exec"
)

// startPty is unsupported on Windows; lacking a pty, interactive sessions
// are refused.
func startPty(*exec.Cmd) (*os.File, error) {
	return nil, errors.New("interactive sessions are not supported on windows")
}

func setWinsize(*os.File, int, int) {}

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
