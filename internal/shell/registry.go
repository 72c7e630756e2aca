// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"maps"
	"slices"
	"sync"
)

// Registry holds the live commands of one client, keyed by pid.
type Registry struct {
	mu       sync.Mutex
	commands map[int]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[int]*Command)}
}

// Add registers c under its pid. It reports false when c is already
// registered or has no pid.
func (r *Registry) Add(c *Command) bool {
	pid := c.PID()
	if pid == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.commands[pid]; ok && existing == c {
		return false
	}
	r.commands[pid] = c
	return true
}

// Remove unregisters c. A different command registered under the same pid is
// left alone.
func (r *Registry) Remove(c *Command) {
	pid := c.PID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commands[pid] == c {
		delete(r.commands, pid)
	}
}

// Find returns the live command with the given pid.
func (r *Registry) Find(pid int) (*Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commands[pid]
	return c, ok
}

// Len returns the number of live commands.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// PIDs returns the pids of the live commands in ascending order.
func (r *Registry) PIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.commands))
}
