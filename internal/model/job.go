package model

import (
	"errors"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrArtifactResolved  = errors.New("artifact already resolved")
)

// DownloadRequest is the caller input for a discovery or download. It is not
// modified after acceptance.
type DownloadRequest struct {
	URL      string `json:"url" validate:"required,max=2048,media_url"`
	Format   string `json:"format" validate:"required,max=32,selector"`
	WithSubs bool   `json:"withSubs"`
}

// Job is a single execution of the extractor for one request.
type Job struct {
	ID           string          `json:"id"`
	Status       JobStatus       `json:"status"`
	Request      DownloadRequest `json:"request"`
	Platform     Platform        `json:"platform"`
	Progress     int             `json:"progress"`
	CurrentStep  string          `json:"currentStep,omitempty"`
	ArtifactPath string          `json:"artifactPath,omitempty"`
	File         string          `json:"file,omitempty"`
	PublicURL    string          `json:"publicUrl,omitempty"`
	RawOutput    string          `json:"rawOutput,omitempty"`
	ErrorCode    ErrorCode       `json:"errorCode,omitempty"`
	Error        *string         `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// NewJob creates a pending job.
func NewJob(id string, req DownloadRequest, platform Platform) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusPending,
		Request:   req,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkRunning moves a pending job to running.
func (j *Job) MarkRunning() error {
	if j.Status != JobStatusPending {
		return ErrInvalidTransition
	}
	j.Status = JobStatusRunning
	now := time.Now().UTC()
	j.StartedAt = &now
	return nil
}

// MarkSucceeded records the resolved artifact. The artifact path is set once.
func (j *Job) MarkSucceeded(artifactPath, file string) error {
	if j.ArtifactPath != "" {
		return ErrArtifactResolved
	}
	if j.Status != JobStatusRunning {
		return ErrInvalidTransition
	}
	j.Status = JobStatusSucceeded
	j.ArtifactPath = artifactPath
	j.File = file
	j.Progress = 100
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// MarkFailed moves a non-terminal job to failed.
func (j *Job) MarkFailed(code ErrorCode, message string) error {
	if j.Status.Terminal() {
		return ErrInvalidTransition
	}
	j.Status = JobStatusFailed
	j.ErrorCode = code
	j.Error = &message
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// UpdateProgress clamps progress to 0..100.
func (j *Job) UpdateProgress(progress int, step string) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.CurrentStep = step
}
