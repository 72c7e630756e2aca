// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"slices"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	unstarted := NewCommand(newFakePeer(), reg, "x")
	if reg.Add(unstarted) {
		t.Error("Add() of a command without pid = true, want false")
	}

	a, _, _ := spawnedCommand(t, 10)
	b, _, _ := spawnedCommand(t, 20)

	if !reg.Add(a) {
		t.Error("first Add(a) = false, want true")
	}
	if reg.Add(a) {
		t.Error("second Add(a) = true, want idempotent false")
	}
	reg.Add(b)

	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
	if got := reg.PIDs(); !slices.Equal(got, []int{10, 20}) {
		t.Errorf("PIDs() = %v, want [10 20]", got)
	}

	// A stale handle with a reused pid does not evict the live one.
	stale, _, _ := spawnedCommand(t, 10)
	reg.Remove(stale)
	if got, ok := reg.Find(10); !ok || got != a {
		t.Error("Remove(stale) evicted the live command")
	}

	reg.Remove(a)
	if _, ok := reg.Find(10); ok {
		t.Error("Find(10) after Remove(a) should fail")
	}
}
