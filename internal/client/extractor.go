package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mediagrab/api/internal/catalog"
	"github.com/mediagrab/api/internal/config"
	"github.com/mediagrab/api/internal/model"
)

// OutputStream identifies which pipe a captured line came from.
type OutputStream int

const (
	StreamStdout OutputStream = iota
	StreamStderr
)

const (
	defaultMaxOutput = 8192
	maxListingBytes  = 4 << 20
	scanBufferBytes  = 1 << 20

	// how long Wait keeps copying output once the extractor has exited or
	// been killed
	pipeDrainTimeout = 5 * time.Second
)

// Subtitle fetch modes.
const (
	SubtitleModeAuto   = "auto"
	SubtitleModeManual = "manual"
	SubtitleModeBoth   = "both"
)

var progressPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// Executor abstracts command execution for testability. Implementations must
// run binary with args as an argument vector, never through a shell.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(OutputStream, string)) error
}

// ExitError reports that the process ran and exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Extractor defines the operations the download service needs from the
// external extraction tool.
type Extractor interface {
	ListFormats(ctx context.Context, sourceURL string) (string, error)
	Download(ctx context.Context, inv Invocation, onLine func(OutputStream, string)) (*DownloadResult, error)
	Available() error
}

// Option configures the client.
type Option func(*ExtractorClient)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *ExtractorClient) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// ExtractorClient drives the yt-dlp command line.
type ExtractorClient struct {
	binary         string
	timeout        time.Duration
	subtitleLangs  string
	subtitleMode   string
	subtitleFormat string
	videoContainer string
	maxOutput      int
	exec           Executor
}

// Invocation describes a single download run.
type Invocation struct {
	URL            string
	Selection      catalog.Selection
	OutputTemplate string
	WithSubs       bool
}

// DownloadResult holds the bounded output captured from a download run.
type DownloadResult struct {
	Stdout   string
	Stderr   string
	Warnings []string
}

// Output returns the captured diagnostics, stderr first.
func (r *DownloadResult) Output() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(r.Stderr); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// NewExtractorClient creates a new extractor client
func NewExtractorClient(cfg *config.DownloadConfig, opts ...Option) (*ExtractorClient, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("extractor binary required")
	}

	maxOutput := cfg.MaxOutputKB * 1024
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.SubtitleMode))
	switch mode {
	case SubtitleModeAuto, SubtitleModeManual, SubtitleModeBoth:
	case "":
		mode = SubtitleModeAuto
	default:
		return nil, fmt.Errorf("unknown subtitle mode %q", cfg.SubtitleMode)
	}

	c := &ExtractorClient{
		binary:         binary,
		timeout:        cfg.TimeoutDuration(),
		subtitleLangs:  normalizeSubLangs(cfg.SubtitleLangs),
		subtitleMode:   mode,
		subtitleFormat: defaultString(cfg.SubtitleFormat, "srt"),
		videoContainer: defaultString(cfg.VideoContainer, "mp4"),
		maxOutput:      maxOutput,
		exec:           commandExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Available reports whether the extractor binary can be found.
func (c *ExtractorClient) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("extractor %q not found: %w", c.binary, err)
	}
	return nil
}

// ListFormats runs the capability listing for sourceURL and returns its raw text.
func (c *ExtractorClient) ListFormats(ctx context.Context, sourceURL string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out, errOut strings.Builder
	args := []string{"-F", "--no-playlist", "--", sourceURL}
	err := c.exec.Run(ctx, c.binary, args, func(stream OutputStream, line string) {
		if stream == StreamStderr {
			appendLimited(&errOut, line, c.maxOutput)
			return
		}
		appendLimited(&out, line, maxListingBytes)
	})
	if err != nil {
		return "", model.NewError(model.CodeDiscoveryFailed, failureMessage(ctx, err, "format listing"), err).
			WithDetail(strings.TrimSpace(errOut.String()))
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", model.NewError(model.CodeDiscoveryFailed, "format listing produced no output", nil).
			WithDetail(strings.TrimSpace(errOut.String()))
	}
	return out.String(), nil
}

// Download executes a download run to completion. The returned result is
// non-nil even on failure so callers can keep the diagnostics.
func (c *ExtractorClient) Download(ctx context.Context, inv Invocation, onLine func(OutputStream, string)) (*DownloadResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		out, errOut strings.Builder
		fatal       string
		warnings    []string
	)
	err := c.exec.Run(ctx, c.binary, c.DownloadArgs(inv), func(stream OutputStream, line string) {
		if stream == StreamStderr {
			appendLimited(&errOut, line, c.maxOutput)
			switch {
			case isFatalLine(line):
				if fatal == "" {
					fatal = strings.TrimSpace(line)
				}
			case isWarningLine(line):
				warnings = append(warnings, strings.TrimSpace(line))
			}
		} else {
			appendLimited(&out, line, c.maxOutput)
		}
		if onLine != nil {
			onLine(stream, line)
		}
	})

	result := &DownloadResult{Stdout: out.String(), Stderr: errOut.String(), Warnings: warnings}
	if err := classifyOutcome(ctx, err, fatal); err != nil {
		return result, err.WithDetail(result.Output())
	}
	return result, nil
}

// DownloadArgs builds the argument vector for inv.
func (c *ExtractorClient) DownloadArgs(inv Invocation) []string {
	args := []string{"--no-playlist", "--newline", "--restrict-filenames"}

	sel := inv.Selection
	if sel.ExtractAudio() {
		args = append(args, "-x", "--audio-format", sel.AudioCodec)
		if sel.AudioQuality != "" {
			args = append(args, "--audio-quality", sel.AudioQuality)
		}
	} else {
		args = append(args, "-f", sel.Expr, "--merge-output-format", c.videoContainer)
	}

	if inv.WithSubs {
		switch c.subtitleMode {
		case SubtitleModeManual:
			args = append(args, "--write-subs")
		case SubtitleModeBoth:
			args = append(args, "--write-subs", "--write-auto-subs")
		default:
			args = append(args, "--write-auto-subs")
		}
		args = append(args, "--sub-langs", c.subtitleLangs, "--convert-subs", c.subtitleFormat)
	}

	args = append(args, "-o", inv.OutputTemplate, "--", inv.URL)
	return args
}

func (c *ExtractorClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// ParseProgress extracts the percentage from a "[download]  42.0% of ..." line.
func ParseProgress(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// classifyOutcome maps a finished run to a failure, or nil on success. A
// non-zero exit is always fatal; on a zero exit only ERROR lines are.
func classifyOutcome(ctx context.Context, runErr error, fatalLine string) *model.Error {
	if runErr != nil {
		return model.NewError(model.CodeExecutionFailed, failureMessage(ctx, runErr, "extractor"), runErr)
	}
	if fatalLine != "" {
		return model.NewError(model.CodeExecutionFailed, fatalLine, nil)
	}
	return nil
}

func failureMessage(ctx context.Context, err error, what string) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return what + " timed out"
	case errors.Is(ctx.Err(), context.Canceled):
		return what + " was cancelled"
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("%s exited with status %d", what, exitErr.Code)
	}
	return fmt.Sprintf("%s could not be started", what)
}

func isFatalLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "ERROR:")
}

func isWarningLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "WARNING:")
}

func normalizeSubLangs(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) == 0 {
		return "en"
	}
	return strings.Join(parts, ",")
}

func defaultString(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(OutputStream, string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	// helpers spawned by the extractor (ffmpeg) share its group and die with it
	killProcessGroup(cmd)
	cmd.WaitDelay = pipeDrainTimeout

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return fmt.Errorf("start command: %w", err)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), scanBufferBytes)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			mu.Lock()
			onLine(stream, scanner.Text())
			mu.Unlock()
		}
		// keep the pipe drained after an oversized line
		_, _ = io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go read(StreamStdout, stdoutR)
	go read(StreamStderr, stderrR)

	waitErr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && ctx.Err() == nil {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("wait command: %w", waitErr)
	}
	return nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(b *strings.Builder, line string, maxKeep int) {
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	if remain := maxKeep - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
