package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mediagrab/api/internal/artifact"
	"github.com/mediagrab/api/internal/catalog"
	"github.com/mediagrab/api/internal/client"
	"github.com/mediagrab/api/internal/config"
	"github.com/mediagrab/api/internal/model"
	"github.com/mediagrab/api/internal/workspace"
)

const (
	TaskTypeDownload = "download:process"
	TaskTypeCleanup  = "download:cleanup"

	QueueDownload = "download"
	QueueCleanup  = "cleanup"

	cleanupMaxRetry = 10
)

// ErrArtifactInUse is returned by Cleanup while a response is still
// streaming from the job's files.
var ErrArtifactInUse = errors.New("artifact is being streamed")

// TaskEnqueuer is the subset of *asynq.Client the service needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier pushes job updates to subscribers.
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string)
	BroadcastComplete(jobID string, result *model.DownloadResponse)
	BroadcastError(jobID string, code, message string)
	Forget(jobID string)
}

type noopNotifier struct{}

func (noopNotifier) BroadcastProgress(string, int, model.JobStatus, string) {}
func (noopNotifier) BroadcastComplete(string, *model.DownloadResponse)       {}
func (noopNotifier) BroadcastError(string, string, string)                   {}
func (noopNotifier) Forget(string)                                           {}

// TaskPayload identifies the job a queued task works on.
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// ParseTaskPayload decodes a download or cleanup task payload.
func ParseTaskPayload(t *asynq.Task) (TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.JobID == "" {
		return p, errors.New("task payload has no job id")
	}
	return p, nil
}

func newTask(taskType, jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// Option configures the download service.
type Option func(*DownloadService)

// WithMirror uploads every succeeded artifact to object storage.
func WithMirror(m client.Mirror) Option {
	return func(s *DownloadService) {
		s.mirror = m
	}
}

// WithNotifier sets the progress subscriber hub.
func WithNotifier(n Notifier) Option {
	return func(s *DownloadService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLeases shares an existing lease table.
func WithLeases(l *artifact.Leases) Option {
	return func(s *DownloadService) {
		if l != nil {
			s.leases = l
		}
	}
}

// DownloadService orchestrates discovery, execution, resolution and retrieval
// of download jobs.
type DownloadService struct {
	extractor        client.Extractor
	workspaces       *workspace.Manager
	store            JobStore
	queue            TaskEnqueuer
	mirror           client.Mirror
	notifier         Notifier
	leases           *artifact.Leases
	retention        time.Duration
	taskTimeout      time.Duration
	deleteAfterServe bool
}

func NewDownloadService(cfg *config.DownloadConfig, extractor client.Extractor, workspaces *workspace.Manager, store JobStore, queue TaskEnqueuer, opts ...Option) *DownloadService {
	s := &DownloadService{
		extractor:        extractor,
		workspaces:       workspaces,
		store:            store,
		queue:            queue,
		notifier:         noopNotifier{},
		leases:           artifact.NewLeases(),
		retention:        cfg.RetentionDuration(),
		deleteAfterServe: cfg.DeleteAfterServe,
	}
	if t := cfg.TimeoutDuration(); t > 0 {
		s.taskTimeout = t + time.Minute
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Leases exposes the stream lease table.
func (s *DownloadService) Leases() *artifact.Leases {
	return s.leases
}

// Discover lists the encodings available for sourceURL.
func (s *DownloadService) Discover(ctx context.Context, sourceURL string) (*model.DiscoverResponse, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, model.NewError(model.CodeInvalidRequest, "url is required", nil)
	}

	listing, err := s.extractor.ListFormats(ctx, sourceURL)
	if err != nil {
		log.Printf("Format discovery failed for %s: %v", sourceURL, err)
		return nil, err
	}

	profile := model.DetectPlatform(sourceURL).Profile()
	return &model.DiscoverResponse{
		Platform:      profile.Platform,
		AudioOnly:     profile.AudioOnly,
		DefaultFormat: profile.DefaultFormat,
		Presets:       catalog.Presets(),
		FormatCatalog: catalog.Parse(listing),
	}, nil
}

// Execute runs a download to completion within the caller's request.
func (s *DownloadService) Execute(ctx context.Context, req *model.DownloadRequest) (*model.DownloadResponse, error) {
	sel, platform, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	ws, err := s.workspaces.Allocate()
	if err != nil {
		return nil, model.NewError(model.CodeInternal, "download directory unavailable", err)
	}

	job := model.NewJob(ws.ID, *req, platform)
	s.save(ctx, job)
	return s.run(ctx, job, ws, sel)
}

// Submit accepts a download for asynchronous execution by the download worker.
func (s *DownloadService) Submit(ctx context.Context, req *model.DownloadRequest) (*model.JobAcceptedResponse, error) {
	if s.queue == nil || s.store == nil {
		return nil, model.NewError(model.CodeInternal, "background jobs are not enabled", nil)
	}
	_, platform, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	ws, err := s.workspaces.Allocate()
	if err != nil {
		return nil, model.NewError(model.CodeInternal, "download directory unavailable", err)
	}
	job := model.NewJob(ws.ID, *req, platform)

	if err := s.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newTask(TaskTypeDownload, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDownload),
		asynq.MaxRetry(0),
		asynq.Retention(DefaultJobTTL),
	}
	if s.taskTimeout > 0 {
		opts = append(opts, asynq.Timeout(s.taskTimeout))
	}
	if _, err := s.queue.EnqueueContext(ctx, task, opts...); err != nil {
		_ = s.fail(ctx, job, nil, model.NewError(model.CodeInternal, "job could not be queued", err))
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Printf("Queued download job %s (%s, format %s)", job.ID, platform, req.Format)
	return &model.JobAcceptedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// Run executes a previously submitted job. Jobs that already left Pending are
// skipped.
func (s *DownloadService) Run(ctx context.Context, jobID string) error {
	if s.store == nil {
		return errors.New("job store not configured")
	}
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusPending {
		log.Printf("Skipping download job %s in status %s", jobID, job.Status)
		return nil
	}

	ws, err := s.workspaces.Open(jobID)
	if err != nil {
		return s.fail(ctx, job, nil, model.NewError(model.CodeInternal, "invalid job id", err))
	}
	sel, err := catalog.Resolve(job.Request.Format)
	if err != nil {
		return s.fail(ctx, job, ws, err)
	}

	_, err = s.run(ctx, job, ws, sel)
	return err
}

// GetStatus returns the current state of a job.
func (s *DownloadService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	if s.store == nil {
		return nil, model.NewError(model.CodeNotFound, "job not found", nil)
	}
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Platform:    job.Platform,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		File:        job.File,
		PublicURL:   job.PublicURL,
		ErrorCode:   job.ErrorCode,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.File != "" {
		resp.DownloadURL = DownloadURL(job.File)
	}
	return resp, nil
}

// Open validates a retrieval reference and opens the artifact for streaming.
// The caller must Close the stream.
func (s *DownloadService) Open(ref string) (*artifact.Stream, error) {
	if err := artifact.ValidateReference(ref); err != nil {
		return nil, err
	}
	if _, ok := workspace.JobIDFromName(ref); !ok || !servable(ref) {
		return nil, model.NewError(model.CodeStreamingFailed, "file not found", nil)
	}

	var onClose func(string)
	if s.deleteAfterServe {
		onClose = s.removeServed
	}
	return artifact.Open(s.workspaces.BaseDir(), ref, s.leases, onClose)
}

func (s *DownloadService) removeServed(path string) {
	if s.leases.InUse(path) {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to remove served artifact %s: %v", path, err)
	}
}

// Cleanup removes a job's files once no response is streaming from them.
func (s *DownloadService) Cleanup(ctx context.Context, jobID string) error {
	ws, err := s.workspaces.Open(jobID)
	if err != nil {
		return err
	}
	if s.leases.InUseWithPrefix(ws.BaseDir, ws.Prefix) {
		return ErrArtifactInUse
	}
	if err := ws.Remove(); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", jobID, err)
	}

	if s.mirror != nil && s.store != nil {
		if job, err := s.store.Get(ctx, jobID); err == nil && job.PublicURL != "" {
			if err := s.mirror.Delete(ctx, client.ArtifactKey(job.File)); err != nil {
				log.Printf("Failed to delete mirrored artifact for job %s: %v", jobID, err)
			}
		}
	}
	s.notifier.Forget(jobID)
	log.Printf("Cleaned up download job %s", jobID)
	return nil
}

// Health reports the state of each collaborator. The second result is false
// when a required collaborator is unavailable.
func (s *DownloadService) Health(ctx context.Context) (map[string]string, bool) {
	status := map[string]string{"extractor": "ok", "storage": "ok"}
	healthy := true

	if err := s.extractor.Available(); err != nil {
		status["extractor"] = err.Error()
		healthy = false
	}
	if err := s.workspaces.EnsureBase(); err != nil {
		status["storage"] = err.Error()
		healthy = false
	}
	switch {
	case s.store == nil:
		status["jobs"] = "disabled"
	case s.store.Ping(ctx) != nil:
		status["jobs"] = "unavailable"
	default:
		status["jobs"] = "ok"
	}
	if s.mirror != nil {
		status["mirror"] = "enabled"
	} else {
		status["mirror"] = "disabled"
	}
	return status, healthy
}

// prepare validates req before any process is spawned.
func (s *DownloadService) prepare(req *model.DownloadRequest) (catalog.Selection, model.Platform, error) {
	if req == nil || strings.TrimSpace(req.URL) == "" {
		return catalog.Selection{}, "", model.NewError(model.CodeInvalidRequest, "url is required", nil)
	}
	if req.Format == model.FormatAuto {
		return catalog.Selection{}, "", model.NewError(model.CodeInvalidRequest, "format auto only lists formats", nil)
	}
	sel, err := catalog.Resolve(req.Format)
	if err != nil {
		return catalog.Selection{}, "", err
	}

	platform := model.DetectPlatform(req.URL)
	if platform.Profile().AudioOnly && sel.Kind == model.FormatKindVideo {
		return catalog.Selection{}, "", model.NewError(model.CodeInvalidRequest,
			fmt.Sprintf("%s only provides audio; choose an audio format", platform), nil)
	}
	return sel, platform, nil
}

// run drives a job from Pending to a terminal state.
func (s *DownloadService) run(ctx context.Context, job *model.Job, ws *workspace.Workspace, sel catalog.Selection) (*model.DownloadResponse, error) {
	if err := job.MarkRunning(); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.UpdateProgress(0, "Starting download")
	s.save(ctx, job)
	s.notifier.BroadcastProgress(job.ID, 0, job.Status, job.CurrentStep)
	log.Printf("Starting download job %s (%s, format %s)", job.ID, job.Platform, job.Request.Format)

	reported := 0
	onLine := func(stream client.OutputStream, line string) {
		if stream != client.StreamStdout {
			return
		}
		pct, ok := client.ParseProgress(line)
		if !ok || int(pct) <= reported {
			return
		}
		reported = int(pct)
		job.UpdateProgress(reported, "Downloading")
		s.notifier.BroadcastProgress(job.ID, reported, job.Status, job.CurrentStep)
		if reported%10 == 0 {
			s.save(ctx, job)
		}
	}

	result, err := s.extractor.Download(ctx, client.Invocation{
		URL:            job.Request.URL,
		Selection:      sel,
		OutputTemplate: ws.OutputTemplate(),
		WithSubs:       job.Request.WithSubs,
	}, onLine)
	if result != nil {
		job.RawOutput = result.Output()
		for _, w := range result.Warnings {
			log.Printf("Download job %s: %s", job.ID, w)
		}
	}
	if err != nil {
		return nil, s.fail(ctx, job, ws, err)
	}

	path, err := artifact.Resolve(ws, sel.Extensions())
	if err != nil {
		return nil, s.fail(ctx, job, ws, err)
	}
	file := filepath.Base(path)
	if err := job.MarkSucceeded(path, file); err != nil {
		return nil, s.fail(ctx, job, ws, model.NewError(model.CodeInternal, "job state conflict", err))
	}
	job.CurrentStep = "Completed"

	resp := &model.DownloadResponse{
		Success:     true,
		JobID:       job.ID,
		File:        file,
		DownloadURL: DownloadURL(file),
	}
	if job.Request.WithSubs {
		resp.Subtitles = subtitleFiles(ws)
	}
	if s.mirror != nil {
		if publicURL, err := s.mirrorArtifact(ctx, path, file); err != nil {
			log.Printf("Mirror upload failed for job %s: %v", job.ID, err)
		} else {
			job.PublicURL = publicURL
			resp.PublicURL = publicURL
		}
	}

	s.save(ctx, job)
	s.scheduleCleanup(ctx, job.ID)
	s.notifier.BroadcastComplete(job.ID, resp)
	log.Printf("Download job %s completed: %s", job.ID, file)
	return resp, nil
}

// fail records a terminal failure and removes the job's files. Cancellation
// of ctx still lands here so nothing is left behind.
func (s *DownloadService) fail(ctx context.Context, job *model.Job, ws *workspace.Workspace, cause error) error {
	code := model.CodeOf(cause)
	msg := cause.Error()
	if e, ok := model.AsError(cause); ok {
		msg = e.Message
	}

	if ws != nil {
		if err := ws.Remove(); err != nil {
			log.Printf("Failed to clean workspace of job %s: %v", job.ID, err)
		}
	}
	if err := job.MarkFailed(code, msg); err != nil {
		log.Printf("Failed to mark job %s failed: %v", job.ID, err)
	}
	s.save(ctx, job)
	s.notifier.BroadcastError(job.ID, string(code), msg)
	log.Printf("Download job %s failed: %s: %s", job.ID, code, msg)

	if e, ok := model.AsError(cause); ok && e.Detail == "" && job.RawOutput != "" {
		e.Detail = job.RawOutput
	}
	return cause
}

func (s *DownloadService) mirrorArtifact(ctx context.Context, path, file string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return s.mirror.Upload(ctx, client.ArtifactKey(file), f, info.Size(), artifact.ContentType(file))
}

func (s *DownloadService) scheduleCleanup(ctx context.Context, jobID string) {
	if s.queue == nil || s.retention <= 0 {
		return
	}
	task, err := newTask(TaskTypeCleanup, jobID)
	if err != nil {
		log.Printf("Failed to create cleanup task for job %s: %v", jobID, err)
		return
	}
	_, err = s.queue.EnqueueContext(context.WithoutCancel(ctx), task,
		asynq.Queue(QueueCleanup),
		asynq.ProcessIn(s.retention),
		asynq.MaxRetry(cleanupMaxRetry),
	)
	if err != nil {
		log.Printf("Failed to schedule cleanup for job %s: %v", jobID, err)
	}
}

// save persists job on a best-effort basis. It outlives ctx so a cancelled
// request still records its outcome.
func (s *DownloadService) save(ctx context.Context, job *model.Job) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), job); err != nil {
		log.Printf("Failed to save job %s: %v", job.ID, err)
	}
}

// DownloadURL is the retrieval URL for an artifact file name.
func DownloadURL(file string) string {
	return "/api/download?file=" + url.QueryEscape(file)
}

var subtitleExtensions = []string{".srt", ".vtt", ".ass"}

// subtitleFiles lists the subtitle files written next to the artifact.
func subtitleFiles(ws *workspace.Workspace) []string {
	entries, err := ws.Entries()
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && hasExt(entry.Name(), subtitleExtensions) && !artifact.Intermediate(entry.Name()) {
			files = append(files, entry.Name())
		}
	}
	return files
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func servable(name string) bool {
	if artifact.Intermediate(name) {
		return false
	}
	return hasExt(name, catalog.MediaExtensions) || hasExt(name, subtitleExtensions)
}
