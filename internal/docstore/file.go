package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

// ErrNoChange may be returned from an Update callback to skip the write while
// still reporting success.
var ErrNoChange = errors.New("docstore: no change")

// LoadStatus describes what Load found on disk.
type LoadStatus int

const (
	Loaded LoadStatus = iota
	Missing
	Corrupt
	// Salvaged means some parts of the document were unreadable and were set aside.
	Salvaged
)

func (s LoadStatus) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Missing:
		return "missing"
	case Corrupt:
		return "corrupt"
	case Salvaged:
		return "salvaged"
	default:
		return fmt.Sprintf("LoadStatus(%d)", int(s))
	}
}

const filePerm os.FileMode = 0o600

// Salvager is implemented by documents that can drop unreadable parts and
// keep the rest. Salvage decodes data into the receiver and returns the raw
// JSON of every part it dropped, keyed by its top-level name.
type Salvager interface {
	Salvage(data []byte) (map[string]json.RawMessage, error)
}

// Option configures a File.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	rename   func(oldpath, newpath string) error
	readOnly bool
}

// WithLogger sets the logger used for corrupt-file and write diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// ReadOnly opens the document for inspection. Loads never move or rewrite
// a damaged file and every write fails.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// File is a durable JSON document of type T stored at a single path.
type File[T any] struct {
	path  string
	empty func() T
	opts  options
	mu    sync.Mutex
}

// New returns a File stored at path. empty builds the document returned when
// the file is absent or unreadable and must never return a shared value.
func New[T any](path string, empty func() T, opts ...Option) *File[T] {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &File[T]{path: path, empty: empty, opts: o}
}

// Path returns the document path.
func (f *File[T]) Path() string { return f.path }

// Load returns the persisted document, or an empty one when the file is
// missing or corrupt.
func (f *File[T]) Load(ctx context.Context) (T, error) {
	doc, _, err := f.LoadWithStatus(ctx)
	return doc, err
}

// LoadWithStatus is Load that also reports what was found on disk.
func (f *File[T]) LoadWithStatus(ctx context.Context) (T, LoadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked(ctx)
}

// Save persists doc atomically.
func (f *File[T]) Save(ctx context.Context, doc T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked(ctx, doc)
}

// Update runs load, fn and save as one critical section. Nothing is written
// when fn fails or returns ErrNoChange.
func (f *File[T]) Update(ctx context.Context, fn func(doc *T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, _, err := f.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return f.saveLocked(ctx, doc)
}

func (f *File[T]) loadLocked(ctx context.Context) (T, LoadStatus, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, Missing, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f.empty(), Missing, nil
		}
		var zero T
		return zero, Missing, ferrors.WrapError(err, ferrors.CategoryStorageWrite, "failed to read document").
			WithContext("path", f.path).
			Build()
	}

	doc, dropped, err := f.decode(data)
	if err != nil {
		f.quarantine(data, err)
		return f.empty(), Corrupt, nil
	}
	if len(dropped) > 0 {
		if err := f.setAside(ctx, doc, dropped); err != nil {
			var zero T
			return zero, Salvaged, err
		}
		return doc, Salvaged, nil
	}
	return doc, Loaded, nil
}

// decode only accepts a JSON object at the top level.
func (f *File[T]) decode(data []byte) (T, map[string]json.RawMessage, error) {
	doc := f.empty()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return doc, nil, fmt.Errorf("document is not a JSON object")
	}
	if s, ok := any(&doc).(Salvager); ok {
		dropped, err := s.Salvage(trimmed)
		if err != nil {
			return f.empty(), nil, err
		}
		return doc, dropped, nil
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return f.empty(), nil, err
	}
	return doc, nil, nil
}

// quarantine moves an unreadable document aside. Read-only files only log.
func (f *File[T]) quarantine(data []byte, cause error) {
	classified := ferrors.StorageCorruptError("unparsable document, starting empty").
		WithCause(cause).
		WithContext("path", f.path).
		Build()
	if f.opts.readOnly {
		f.opts.logger.Warn(classified.Message(), logfields.Path(f.path), logfields.Error(classified))
		return
	}

	corruptPath, err := f.reserveCorruptPath()
	if err == nil {
		if err = f.opts.rename(f.path, corruptPath); err != nil {
			// Keep a copy even when the original cannot be moved.
			err = os.WriteFile(corruptPath, data, filePerm)
		}
	}
	if err != nil {
		f.opts.logger.Warn(classified.Message(),
			logfields.Path(f.path),
			logfields.Error(classified),
			slog.String("quarantine_error", err.Error()))
		return
	}
	f.opts.logger.Warn(classified.Message(),
		logfields.Path(f.path),
		slog.String("corrupt_copy", corruptPath),
		logfields.Error(classified))
}

// setAside writes the dropped parts to a corrupt copy and rewrites the live
// document without them. Nothing is rewritten unless the copy is on disk.
func (f *File[T]) setAside(ctx context.Context, doc T, dropped map[string]json.RawMessage) error {
	names := make([]string, 0, len(dropped))
	for name := range dropped {
		names = append(names, name)
	}
	slices.Sort(names)
	classified := ferrors.StorageCorruptError("unreadable entries set aside").
		WithContext("path", f.path).
		WithContext("entries", strings.Join(names, ",")).
		Build()

	if f.opts.readOnly {
		f.opts.logger.Warn(classified.Message(), logfields.Path(f.path), logfields.Count(len(names)), logfields.Error(classified))
		return nil
	}

	data, err := json.MarshalIndent(dropped, "", "  ")
	if err != nil {
		return f.writeError(err, "failed to encode unreadable entries")
	}
	corruptPath, err := f.reserveCorruptPath()
	if err != nil {
		return f.writeError(err, "failed to create corrupt copy")
	}
	if err := os.WriteFile(corruptPath, append(data, '\n'), filePerm); err != nil {
		_ = os.Remove(corruptPath)
		return f.writeError(err, "failed to write corrupt copy")
	}
	f.opts.logger.Warn(classified.Message(),
		logfields.Path(f.path),
		logfields.Count(len(names)),
		slog.String("corrupt_copy", corruptPath),
		logfields.Error(classified))
	return f.saveLocked(ctx, doc)
}

// reserveCorruptPath creates an empty file named <path>.corrupt-<unixnano>,
// adding a counter when that name is taken.
func (f *File[T]) reserveCorruptPath() (string, error) {
	base := fmt.Sprintf("%s.corrupt-%d", f.path, f.opts.now().UnixNano())
	name := base
	for i := 1; ; i++ {
		fh, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			return name, fh.Close()
		}
		if !errors.Is(err, os.ErrExist) || i > 1000 {
			return "", err
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

func (f *File[T]) saveLocked(ctx context.Context, doc T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.opts.readOnly {
		return ferrors.StorageWriteError("document is opened read-only").
			WithRetry(ferrors.RetryNever).
			WithContext("path", f.path).
			Build()
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return f.writeError(err, "failed to marshal document")
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return f.writeError(err, "failed to create data directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return f.writeError(err, "failed to create temporary file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return f.writeError(err, "failed to write temporary file")
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return f.writeError(err, "failed to set file mode")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return f.writeError(err, "failed to sync temporary file")
	}
	if err := tmp.Close(); err != nil {
		return f.writeError(err, "failed to close temporary file")
	}
	if err := f.opts.rename(tmpPath, f.path); err != nil {
		return f.writeError(err, "failed to replace document")
	}
	committed = true

	if err := syncDir(dir); err != nil {
		// The rename is done; only durability of the directory entry is in doubt.
		f.opts.logger.Warn("Failed to sync data directory", logfields.Path(dir), logfields.Error(err))
	}
	return nil
}

func (f *File[T]) writeError(err error, msg string) error {
	return ferrors.WrapError(err, ferrors.CategoryStorageWrite, msg).
		Retryable().
		WithContext("path", f.path).
		Build()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
