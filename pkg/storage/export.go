package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vjranagit/histextract/pkg/source"
	"github.com/vjranagit/histextract/pkg/types"
)

// maxEntrySize bounds a single export line; long histories are one line
const maxEntrySize = 256 << 20

// isCompressed reports whether an export path is zstd compressed
func isCompressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// ExportWriter writes history export files, one JSON entry per line
type ExportWriter struct {
	file   *os.File
	zw     *zstd.Encoder
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewExportWriter creates an export file at path. Names ending in .zst are
// zstd compressed.
func NewExportWriter(path string) (*ExportWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	ew := &ExportWriter{file: file}
	var w io.Writer = file
	if isCompressed(path) {
		ew.zw, err = zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = ew.zw
	}
	ew.writer = bufio.NewWriter(w)

	return ew, nil
}

// Append appends an entry to the export
func (w *ExportWriter) Append(entry *types.ExportEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal export entry: %w", err)
	}

	// Write entry with newline
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write export entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// AppendRequest appends every record of an import request
func (w *ExportWriter) AppendRequest(req *types.ImportRequest) error {
	entries := req.Entries()
	for i := range entries {
		if err := w.Append(&entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes buffered entries to the file
func (w *ExportWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	if w.zw != nil {
		if err := w.zw.Flush(); err != nil {
			return fmt.Errorf("failed to flush zstd stream: %w", err)
		}
	}

	return nil
}

// Close flushes and closes the export file
func (w *ExportWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}

	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			w.file.Close()
			return err
		}
	}

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}

	return w.file.Close()
}

// ReadExport calls handler for every entry of an export file
func ReadExport(path string, handler func(*types.ExportEntry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if isCompressed(path) {
		zr, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEntrySize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var entry types.ExportEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("line %d: failed to unmarshal export entry: %w", line, err)
		}

		if err := handler(&entry); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}

	return scanner.Err()
}

// LoadExport reads an export file into an in-memory model
func LoadExport(path string) (*source.Model, error) {
	m := source.NewModel()
	if err := ReadExport(path, m.Apply); err != nil {
		return nil, fmt.Errorf("failed to load export %s: %w", path, err)
	}
	return m, nil
}
