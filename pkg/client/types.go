package client

import "time"

// StackStatus mirrors the daemon's aggregate snapshot.
type StackStatus struct {
	Ready     bool          `json:"ready"`
	Processes []ProcessInfo `json:"processes"`
}

// ProcessInfo mirrors one process's snapshot.
type ProcessInfo struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Required   bool      `json:"required"`
	DependsOn  []string  `json:"depends_on,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Restarts   int       `json:"restarts"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ReadyAt    time.Time `json:"ready_at,omitempty"`
	StoppedAt  time.Time `json:"stopped_at,omitempty"`
	ExitCode   int       `json:"exit_code"`
	ExitSignal string    `json:"exit_signal,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// LogLine is one captured output line returned by the logs endpoint.
type LogLine struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Transition is one journaled lifecycle state change.
type Transition struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	PID    int       `json:"pid,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}
