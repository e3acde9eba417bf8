package model

// WebSocket message types
const (
	WSMessageTypeState   = "state"
	WSMessageTypeRemoved = "removed"
	WSMessageTypePing    = "ping"
	WSMessageTypePong    = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobMessage reports the current state and priority of a job
type WSJobMessage struct {
	Type     string   `json:"type"`
	JobID    string   `json:"jobId"`
	State    JobState `json:"state"`
	Priority int      `json:"priority"`
}

// WSRemovedMessage reports that a job was deleted
type WSRemovedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}
