// SPDX-License-Identifier: MPL-2.0

package editor

import (
	"slices"

	"github.com/invowk/scribe/pkg/textdoc"
)

// AddMarker adds m, replacing any marker with the same ID in place.
func (e *Editor) AddMarker(m textdoc.Marker) {
	if i := e.markerIndex(m.ID); i >= 0 {
		e.markers[i] = m
		return
	}
	e.markers = append(e.markers, m)
}

// RemoveMarker removes the marker with the given ID, if present.
func (e *Editor) RemoveMarker(id string) {
	if i := e.markerIndex(id); i >= 0 {
		e.markers = slices.Delete(e.markers, i, i+1)
	}
}

// Markers returns the markers in the order they were first added.
func (e *Editor) Markers() []textdoc.Marker { return slices.Clone(e.markers) }

// Marker returns the marker with the given ID.
func (e *Editor) Marker(id string) (textdoc.Marker, bool) {
	if i := e.markerIndex(id); i >= 0 {
		return e.markers[i], true
	}
	return textdoc.Marker{}, false
}

func (e *Editor) markerIndex(id string) int {
	return slices.IndexFunc(e.markers, func(m textdoc.Marker) bool { return m.ID == id })
}
