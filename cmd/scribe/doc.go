// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the scribe CLI: local and remote search and replace,
// the tracker server, and remote command execution.
package cmd
