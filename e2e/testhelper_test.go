package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/mediagrab/api/internal/client"
	"github.com/mediagrab/api/internal/config"
	"github.com/mediagrab/api/internal/handler"
	"github.com/mediagrab/api/internal/middleware"
	"github.com/mediagrab/api/internal/service"
	ws "github.com/mediagrab/api/internal/websocket"
	"github.com/mediagrab/api/internal/worker"
	"github.com/mediagrab/api/internal/workspace"
	"github.com/mediagrab/api/pkg/response"
)

// stubExtractor mimics the extractor's command line: -F prints a listing,
// otherwise a file is written through the -o template. URLs containing
// "fail" exit non-zero.
const stubExtractor = `#!/bin/sh
if [ "$1" = "-F" ]; then
  case "$4" in
    *fail*) echo "ERROR: Unsupported URL: $4" 1>&2; exit 1 ;;
  esac
  echo "[info] Available formats for abc:"
  echo "ID  EXT   RESOLUTION"
  echo "299  1920x1080 video only"
  echo "140  audio only (m4a)"
  exit 0
fi
tmpl=""; url=""; ext="mp4"
while [ $# -gt 0 ]; do
  case "$1" in
    -o) tmpl="$2"; shift ;;
    --audio-format) ext="$2"; shift ;;
    --) url="$2"; shift ;;
  esac
  shift
done
case "$url" in
  *fail*) echo "ERROR: Unsupported URL: $url" 1>&2; exit 1 ;;
esac
echo "[download]  50.0% of 1.00MiB"
echo "[download] 100% of 1.00MiB"
prefix=${tmpl%"%(title)"*}
printf 'media-bytes' > "${prefix}Test_Title.${ext}"
exit 0
`

// queuedTasks records enqueued tasks so tests can run them explicitly.
type queuedTasks struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *queuedTasks) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (q *queuedTasks) take(taskType string) []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out, rest []*asynq.Task
	for _, t := range q.tasks {
		if t.Type() == taskType {
			out = append(out, t)
		} else {
			rest = append(rest, t)
		}
	}
	q.tasks = rest
	return out
}

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	baseDir string
	queue   *queuedTasks
	service *service.DownloadService
}

// setupApp creates a Fiber app with the production route table, a stub
// extractor binary and in-memory job storage.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub extractor needs a POSIX shell")
	}

	dir := t.TempDir()
	binary := filepath.Join(dir, "yt-dlp")
	if err := os.WriteFile(binary, []byte(stubExtractor), 0o755); err != nil {
		t.Fatalf("failed to write stub extractor: %v", err)
	}

	cfg := config.DownloadConfig{
		BaseDir:       filepath.Join(dir, "downloads"),
		Binary:        binary,
		Timeout:       30,
		Retention:     60,
		SubtitleLangs: "en",
		SubtitleMode:  "auto",
	}

	extractor, err := client.NewExtractorClient(&cfg)
	if err != nil {
		t.Fatalf("failed to create extractor: %v", err)
	}
	workspaces, err := workspace.NewManager(cfg.BaseDir)
	if err != nil {
		t.Fatalf("failed to create workspace manager: %v", err)
	}

	queue := &queuedTasks{}
	hub := ws.NewHub()
	svc := service.NewDownloadService(&cfg, extractor, workspaces, service.NewMemoryJobStore(), queue, service.WithNotifier(hub))

	validate := handler.NewValidator()
	router := &handler.Router{
		Download: handler.NewDownloadHandler(svc, validate),
		Jobs:     handler.NewJobHandler(svc, validate),
		Health:   handler.NewHealthHandler(svc),
		Limiter:  middleware.NewRateLimiter(nil),
		Limits:   config.RateLimitConfig{},
		Hub:      hub,
	}

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	router.Register(app)

	return &testApp{app: app, baseDir: workspaces.BaseDir(), queue: queue, service: svc}
}

// runDownloads executes every queued download task through the worker.
func (ta *testApp) runDownloads(t *testing.T) {
	t.Helper()
	w := worker.NewDownloadWorker(ta.service)
	for _, task := range ta.queue.take(service.TaskTypeDownload) {
		if err := w.ProcessTask(context.Background(), task); err != nil {
			t.Logf("download task returned: %v", err)
		}
	}
}

// files lists the download directory.
func (ta *testApp) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(ta.baseDir)
	if err != nil {
		t.Fatalf("failed to list downloads: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}
