// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package tracker

import (
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

func startPty(cmd *exec.Cmd) (*os.File, error) {
	return pty.Start(cmd)
}

func setWinsize(f *os.File, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	_ = pty.Setsize(f, &pty.Winsize{Rows: uint16(height), Cols: uint16(width)})
}

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
