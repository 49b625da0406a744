package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mediagrab/api/internal/model"
)

// Leases counts open streams per artifact path. A path with an active lease
// must not be deleted.
type Leases struct {
	mu     sync.Mutex
	active map[string]int
}

// NewLeases creates an empty lease table.
func NewLeases() *Leases {
	return &Leases{active: make(map[string]int)}
}

// Acquire takes a lease on path. The returned release func is idempotent.
func (l *Leases) Acquire(path string) func() {
	l.mu.Lock()
	l.active[path]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.active[path] <= 1 {
				delete(l.active, path)
				return
			}
			l.active[path]--
		})
	}
}

// InUse reports whether path has an active lease.
func (l *Leases) InUse(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[path] > 0
}

// InUseWithPrefix reports whether any leased file in dir starts with prefix.
func (l *Leases) InUseWithPrefix(dir, prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path := range l.active {
		if filepath.Dir(path) == dir && strings.HasPrefix(filepath.Base(path), prefix) {
			return true
		}
	}
	return false
}

// Stream is an open artifact. Closing it releases its lease and runs the
// optional onClose hook.
type Stream struct {
	*os.File
	FileName    string
	Path        string
	Size        int64
	ContentType string

	release func()
	onClose func(path string)
	once    sync.Once
}

// Close closes the file and releases the lease.
func (s *Stream) Close() error {
	err := s.File.Close()
	s.once.Do(func() {
		s.release()
		if s.onClose != nil {
			s.onClose(s.Path)
		}
	})
	return err
}

// ValidateReference checks that ref is a bare file name. Anything with a
// path separator or a traversal segment is rejected before the filesystem is
// touched.
func ValidateReference(ref string) error {
	switch {
	case ref == "", ref == ".", ref == "..":
		return model.NewError(model.CodeInvalidRequest, "file reference is required", nil)
	case strings.ContainsAny(ref, `/\`), strings.ContainsRune(ref, 0):
		return model.NewError(model.CodeInvalidRequest, "file reference must be a bare file name", nil)
	case filepath.Base(ref) != ref:
		return model.NewError(model.CodeInvalidRequest, "file reference must be a bare file name", nil)
	}
	return nil
}

// Open validates ref, confirms it resolves to a regular file strictly inside
// baseDir and opens it under a lease.
func Open(baseDir, ref string, leases *Leases, onClose func(path string)) (*Stream, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}

	path := filepath.Join(baseDir, ref)
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || rel != ref {
		return nil, model.NewError(model.CodeInvalidRequest, "file reference escapes the download directory", err)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.NewError(model.CodeStreamingFailed, "file not found", nil)
		}
		return nil, model.NewError(model.CodeStreamingFailed, "file could not be inspected", err)
	}
	if !info.Mode().IsRegular() {
		return nil, model.NewError(model.CodeStreamingFailed, "file not found", nil)
	}

	release := leases.Acquire(path)
	f, err := os.Open(path)
	if err != nil {
		release()
		return nil, model.NewError(model.CodeStreamingFailed, "file could not be opened", err)
	}

	return &Stream{
		File:        f,
		FileName:    ref,
		Path:        path,
		Size:        info.Size(),
		ContentType: ContentType(ref),
		release:     release,
		onClose:     onClose,
	}, nil
}
