// Package events broadcasts analysis lifecycle events over Redis pub/sub so
// dashboards and sibling replicas can observe progress without polling the
// state store. Delivery is fire-and-forget: subscribers that are offline
// miss events and catch up from the state store.
package events

import "time"

// Event types.
const (
	// EventTypeStatus marks a lifecycle transition (queued, processing,
	// completed, failed).
	EventTypeStatus = "analysis.status"

	// EventTypeProgress carries a milestone update for a running analysis.
	EventTypeProgress = "analysis.progress"
)

// GlobalChannel carries status events for every analysis. List views
// subscribe here.
const GlobalChannel = "analyses"

// AnalysisChannel returns the channel for a single analysis's events.
// Format: "analysis:{analysis_id}"
func AnalysisChannel(analysisID string) string {
	return "analysis:" + analysisID
}

// StatusEvent is published on lifecycle transitions, to both the analysis
// channel and the global channel.
type StatusEvent struct {
	Type       string    `json:"type"` // always EventTypeStatus
	AnalysisID string    `json:"analysis_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProgressEvent is published on milestone boundaries, to the analysis
// channel only.
type ProgressEvent struct {
	Type       string    `json:"type"` // always EventTypeProgress
	AnalysisID string    `json:"analysis_id"`
	Step       string    `json:"step"`
	Percent    int       `json:"percent"`
	State      string    `json:"state"` // progress | success | failure
	Timestamp  time.Time `json:"timestamp"`
}
