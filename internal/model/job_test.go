package model

import (
	"errors"
	"testing"
)

func TestJobLifecycle(t *testing.T) {
	job := NewJob("job-1", DownloadRequest{URL: "https://example.com/v", Format: "mp3"}, PlatformOther)
	if job.Status != JobStatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}

	if err := job.MarkSucceeded("/tmp/a.mp3", "a.mp3"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from pending, got %v", err)
	}

	if err := job.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if job.StartedAt == nil {
		t.Fatal("expected StartedAt to be set")
	}

	if err := job.MarkSucceeded("/tmp/a.mp3", "a.mp3"); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}

	if err := job.MarkSucceeded("/tmp/b.mp3", "b.mp3"); !errors.Is(err, ErrArtifactResolved) {
		t.Fatalf("expected artifact path to be immutable, got %v", err)
	}
	if job.ArtifactPath != "/tmp/a.mp3" {
		t.Errorf("artifact path changed to %s", job.ArtifactPath)
	}

	if err := job.MarkFailed(CodeExecutionFailed, "late failure"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal job to reject failure, got %v", err)
	}
}

func TestJobMarkFailed(t *testing.T) {
	job := NewJob("job-2", DownloadRequest{URL: "https://example.com/v", Format: "720p"}, PlatformOther)
	if err := job.MarkFailed(CodeInvalidRequest, "bad selector"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if job.Status != JobStatusFailed || job.ErrorCode != CodeInvalidRequest {
		t.Fatalf("unexpected job state: %s %s", job.Status, job.ErrorCode)
	}
	if job.Error == nil || *job.Error != "bad selector" {
		t.Fatalf("unexpected error message: %v", job.Error)
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://www.youtube.com/watch?v=abc", PlatformYouTube},
		{"https://youtu.be/abc", PlatformYouTube},
		{"https://music.youtube.com/watch?v=abc", PlatformYouTube},
		{"https://open.spotify.com/track/123", PlatformSpotify},
		{"https://x.com/user/status/1", PlatformTwitter},
		{"https://vm.tiktok.com/xyz", PlatformTikTok},
		{"https://www.instagram.com/p/abc", PlatformInstagram},
		{"https://fb.watch/abc", PlatformFacebook},
		{"https://www.threads.net/@user/post/1", PlatformThreads},
		{"https://old.reddit.com/r/videos/1", PlatformReddit},
		{"https://notyoutube.com/watch", PlatformOther},
		{"https://example.com/video", PlatformOther},
		{"::not a url", PlatformOther},
	}

	for _, tt := range tests {
		if got := DetectPlatform(tt.url); got != tt.want {
			t.Errorf("DetectPlatform(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestPlatformProfile(t *testing.T) {
	if !PlatformSpotify.Profile().AudioOnly {
		t.Error("expected spotify to be audio only")
	}
	if PlatformYouTube.Profile().AudioOnly {
		t.Error("expected youtube to allow video")
	}
	if got := Platform("unknown").Profile().Platform; got != PlatformOther {
		t.Errorf("expected unknown platform to fall back to other, got %s", got)
	}
}

func TestCodeOf(t *testing.T) {
	err := NewError(CodeAmbiguousArtifact, "two candidates", nil)
	wrapped := errors.Join(errors.New("context"), err)
	if got := CodeOf(wrapped); got != CodeAmbiguousArtifact {
		t.Errorf("CodeOf = %s, want %s", got, CodeAmbiguousArtifact)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeInternal)
	}
}
