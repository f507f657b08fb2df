package client

import "time"

// ProcessSnapshot mirrors process.Snapshot's JSON shape, decoded independent
// of the internal package so external callers don't need an internal import.
type ProcessSnapshot struct {
	ID           string `json:"ID"`
	Status       string `json:"Status"`
	QueueSize    int    `json:"QueueSize"`
	MessageCount uint64 `json:"MessageCount"`
	StartedAt    int64  `json:"StartedAt"` // unix nanos; 0 if not yet running
}

// ChildRecord mirrors supervisor.ChildRecord's JSON shape.
type ChildRecord struct {
	Spec              ChildSpec   `json:"Spec"`
	CurrentProcessID  string      `json:"CurrentProcessID"`
	RestartCount      int         `json:"RestartCount"`
	RestartTimestamps []time.Time `json:"RestartTimestamps"`
}

// ChildSpec mirrors supervisor.ChildSpec's JSON shape (Start is excluded: it
// is a func value and never serializes).
type ChildSpec struct {
	ID                string `json:"ID"`
	Restart           int    `json:"Restart"`
	ShutdownTimeoutMs int64  `json:"ShutdownTimeoutMs"`
}

// RegistryMatch mirrors registry.Match's JSON shape.
type RegistryMatch struct {
	Key          string    `json:"Key"`
	ProcessID    string    `json:"ProcessID"`
	Metadata     any       `json:"Metadata"`
	RegisteredAt time.Time `json:"RegisteredAt"`
}

// ErrorResponse is the JSON body returned on non-200 responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
