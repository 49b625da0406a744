package model

import "time"

// DiscoverRequest asks for the encodings available for a URL
type DiscoverRequest struct {
	URL string `json:"url" validate:"required,max=2048,media_url"`
}

// FormatDescriptor is one selectable encoding
type FormatDescriptor struct {
	ID    string     `json:"id"`
	Kind  FormatKind `json:"kind"`
	Label string     `json:"label"`
}

// FormatCatalog is a discovery result partitioned by kind. Order within each
// group is the extractor's own order.
type FormatCatalog struct {
	VideoFormats []FormatDescriptor `json:"videoFormats"`
	AudioFormats []FormatDescriptor `json:"audioFormats"`
}

// DiscoverResponse is returned for a discovery request
type DiscoverResponse struct {
	Platform Platform `json:"platform"`
	// AudioOnly platforms reject video selectors
	AudioOnly     bool     `json:"audioOnly"`
	DefaultFormat string   `json:"defaultFormat"`
	Presets       []string `json:"presets"`
	FormatCatalog
}

// DownloadResponse is returned when a download succeeded
type DownloadResponse struct {
	Success     bool     `json:"success"`
	JobID       string   `json:"jobId"`
	File        string   `json:"file"`
	DownloadURL string   `json:"downloadUrl"`
	PublicURL   string   `json:"publicUrl,omitempty"`
	Subtitles   []string `json:"subtitles,omitempty"`
}

// JobAcceptedResponse is returned when a download is queued
type JobAcceptedResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse represents the status of a queued download
type JobStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Platform    Platform   `json:"platform"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	File        string     `json:"file,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	PublicURL   string     `json:"publicUrl,omitempty"`
	ErrorCode   ErrorCode  `json:"errorCode,omitempty"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}
