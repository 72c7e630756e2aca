// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the markdown help pages the
// CLI renders for known failure classes.
package issue
