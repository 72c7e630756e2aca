// SPDX-License-Identifier: MPL-2.0

// Package config loads scribe settings from an optional CUE file validated
// against an embedded schema, layered over defaults held by Viper.
package config
