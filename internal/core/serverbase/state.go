// SPDX-License-Identifier: MPL-2.0

package serverbase

const (
	// StateCreated means Start has not been called.
	StateCreated State = iota
	// StateStarting means Start is binding and initializing.
	StateStarting
	// StateRunning means the server accepts connections.
	StateRunning
	// StateStopping means a graceful shutdown is in progress.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal and carries LastError.
	StateFailed
)

// State is a server lifecycle state.
type State int32

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}
