package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrExporterClosed is returned by Export after Close.
var ErrExporterClosed = errors.New("trace exporter closed")

// FileExporter appends trace records to a JSON Lines file. The file is only
// archived after a run record, so the records of one run always share a file.
// Archives are named after the run that filled the file: traces.jsonl.<runId>.
type FileExporter struct {
	path        string
	maxSize     int64
	maxArchives int

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
}

// WithMaxSize sets the size after which the file is archived at the end of
// the current run (default: 10MB).
func WithMaxSize(bytes int64) FileExporterOption {
	return func(fe *FileExporter) {
		fe.maxSize = bytes
	}
}

// WithMaxArchives sets how many archived files are kept (default: 5).
func WithMaxArchives(count int) FileExporterOption {
	return func(fe *FileExporter) {
		fe.maxArchives = count
	}
}

// NewFileExporter creates a trace exporter writing to path. An empty path
// yields a NoopExporter.
func NewFileExporter(path string, opts ...FileExporterOption) (Exporter, error) {
	if path == "" {
		return NewNoopExporter(), nil
	}

	fe := &FileExporter{
		path:        path,
		maxSize:     10 * 1024 * 1024,
		maxArchives: 5,
	}
	for _, opt := range opts {
		opt(fe)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	if err := fe.open(); err != nil {
		return nil, err
	}
	return fe, nil
}

func (fe *FileExporter) open() error {
	file, err := os.OpenFile(fe.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat trace file: %w", err)
	}
	fe.file = file
	fe.size = info.Size()
	return nil
}

// Export appends record as one line. Identifiers are written verbatim,
// including non-ASCII requirement IDs.
func (fe *FileExporter) Export(ctx context.Context, record *TraceRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}

	fe.mu.Lock()
	defer fe.mu.Unlock()

	if fe.closed {
		return ErrExporterClosed
	}

	n, err := fe.file.Write(buf.Bytes())
	fe.size += int64(n)
	if err != nil {
		return fmt.Errorf("write trace record: %w", err)
	}

	if record.Operation == OperationRun && fe.size >= fe.maxSize {
		if err := fe.archive(record.RunID); err != nil {
			return fmt.Errorf("archive trace file: %w", err)
		}
	}
	return nil
}

// archive moves the current file aside under runID and starts a new one.
// Must be called with the lock held.
func (fe *FileExporter) archive(runID string) error {
	if err := fe.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(fe.path, fe.archivePath(runID)); err != nil {
		return err
	}
	if err := fe.open(); err != nil {
		return err
	}
	return fe.prune()
}

func (fe *FileExporter) archivePath(runID string) string {
	if runID == "" {
		runID = "unknown"
	}
	path := fe.path + "." + runID
	for i := 2; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = fmt.Sprintf("%s.%s-%d", fe.path, runID, i)
	}
}

// prune removes the oldest archives beyond maxArchives.
func (fe *FileExporter) prune() error {
	archives, err := fe.archives()
	if err != nil {
		return err
	}
	for len(archives) > fe.maxArchives {
		if err := os.Remove(archives[0]); err != nil {
			return err
		}
		archives = archives[1:]
	}
	return nil
}

// archives lists archived files, oldest first.
func (fe *FileExporter) archives() ([]string, error) {
	dir, base := filepath.Split(fe.path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type archived struct {
		path    string
		modTime int64
	}
	var found []archived
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base+".") || len(e.Name()) == len(base)+1 {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		found = append(found, archived{filepath.Join(dir, e.Name()), info.ModTime().UnixNano()})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].modTime != found[j].modTime {
			return found[i].modTime < found[j].modTime
		}
		return found[i].path < found[j].path
	})

	paths := make([]string, len(found))
	for i, a := range found {
		paths[i] = a.path
	}
	return paths, nil
}

// Close syncs and closes the trace file. It is safe to call more than once.
func (fe *FileExporter) Close() error {
	fe.mu.Lock()
	defer fe.mu.Unlock()

	if fe.closed {
		return nil
	}
	fe.closed = true

	if err := fe.file.Sync(); err != nil {
		fe.file.Close()
		return fmt.Errorf("sync trace file: %w", err)
	}
	return fe.file.Close()
}
