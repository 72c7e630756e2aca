// SPDX-License-Identifier: MPL-2.0

// Package editor provides a headless text editor: a Buffer plus the caret,
// selection, viewport, marker and mark-ring state that an interactive search
// session drives. Editors are not safe for concurrent use.
package editor
