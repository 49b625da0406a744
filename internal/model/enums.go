package model

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Format kinds
type FormatKind string

const (
	FormatKindVideo FormatKind = "video"
	FormatKindAudio FormatKind = "audio"
)

// FormatAuto is the selector sentinel meaning "discover only".
const FormatAuto = "auto"
