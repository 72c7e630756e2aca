// SPDX-License-Identifier: MPL-2.0

// Package tracker serves the shell protocol over SSH.
//
// Clients authenticate with a token the tracker generated and open a session
// running the l2l command; the tracker then attaches an l2l peer to the
// session channel and installs the shell services on it. Sessions that ask
// for a pty without a command get an interactive shell.
package tracker
