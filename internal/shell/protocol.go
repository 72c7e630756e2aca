// SPDX-License-Identifier: MPL-2.0

package shell

// TrackerID addresses the tracker endpoint.
const TrackerID = "tracker"

// Wire actions.
const (
	ActionSpawn        = "shell.spawn"
	ActionWriteToStdin = "shell.writeToStdin"
	ActionKill         = "shell.kill"
	ActionInfo         = "shell.info"
	ActionEnv          = "shell.env"
	ActionOnOutput     = "shell.onOutput"
	ActionOnExit       = "shell.onExit"
)

// DefaultSignal is sent by Kill when no signal is named.
const DefaultSignal = "KILL"

type (
	// SpawnRequest asks the tracker to start a command.
	SpawnRequest struct {
		Command string            `json:"command"`
		Env     map[string]string `json:"env"`
		Cwd     *string           `json:"cwd"`
		Stdin   *string           `json:"stdin"`
	}

	// SpawnReply carries the pid of the new process or an error.
	SpawnReply struct {
		PID   int    `json:"pid,omitempty"`
		Error string `json:"error,omitempty"`
	}

	// StdinRequest writes to a process's stdin. End closes stdin after Stdin
	// is written.
	StdinRequest struct {
		PID   int    `json:"pid"`
		Stdin string `json:"stdin"`
		End   bool   `json:"end,omitempty"`
	}

	// KillRequest signals a process.
	KillRequest struct {
		PID    int    `json:"pid"`
		Signal string `json:"signal,omitempty"`
	}

	// StatusReply acknowledges writeToStdin and kill.
	StatusReply struct {
		Status string `json:"status,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	// InfoReply describes the tracker's environment.
	InfoReply struct {
		DefaultDirectory string `json:"defaultDirectory"`
		Error            string `json:"error,omitempty"`
	}

	// EnvReply carries the tracker's process environment.
	EnvReply struct {
		Env   map[string]string `json:"env"`
		Error string            `json:"error,omitempty"`
	}

	// OutputNotification is pushed for every chunk a process writes.
	OutputNotification struct {
		PID    int     `json:"pid"`
		Stdout *string `json:"stdout,omitempty"`
		Stderr *string `json:"stderr,omitempty"`
	}

	// ExitNotification is pushed when a process ends. Exactly one of Code
	// and Error is set.
	ExitNotification struct {
		PID   int    `json:"pid"`
		Code  *int   `json:"code,omitempty"`
		Error string `json:"error,omitempty"`
	}
)
