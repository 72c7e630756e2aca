// SPDX-License-Identifier: MPL-2.0

// Package testutil holds test helpers that fail or log consistently:
// environment overrides (MustSetenv, SetConfigHome), resource cleanup
// (MustClose, MustStop, DeferStop) and bounded waiting (Context, Eventually).
package testutil
