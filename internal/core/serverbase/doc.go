// SPDX-License-Identifier: MPL-2.0

// Package serverbase holds the lifecycle state machine shared by long-running
// servers: atomic state reads, a readiness channel, goroutine tracking and an
// asynchronous error channel.
package serverbase
