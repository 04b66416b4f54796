// Package csvout writes and reads two-column Time,Value CSV files and
// tracks the scratch files produced during a run.
package csvout

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/vjranagit/histextract/pkg/types"
)

// Header is the first row of every series file
var Header = []string{"Time", "Value"}

// Write writes s to path, replacing any existing file
func Write(path string, s types.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := Encode(f, s); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// Encode writes s as CSV with a Time,Value header
func Encode(w io.Writer, s types.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, sample := range s {
		if err := cw.Write([]string{FormatFloat(sample.Time), FormatFloat(sample.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read reads a series file written by Write
func Read(path string) (types.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s, nil
}

// Decode parses a Time,Value CSV stream
func Decode(r io.Reader) (types.Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("missing header")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if !strings.EqualFold(header[0], Header[0]) || !strings.EqualFold(header[1], Header[1]) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var s types.Series
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid time %q", line, record[0])
		}
		v, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value %q", line, record[1])
		}
		s = append(s, types.Sample{Time: t, Value: v})
	}
	return s, nil
}

// FormatFloat renders v in its shortest round-trip form. Magnitudes in
// [1e-4, 1e16) are written in decimal notation, others with an exponent.
// Decimal values always carry a fractional part ("5.0").
func FormatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	out := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// TempFiles tracks intermediate files for removal at the end of a run
type TempFiles struct {
	paths []string
	log   *logrus.Entry
}

// NewTempFiles creates an empty tracker
func NewTempFiles(log *logrus.Entry) *TempFiles {
	return &TempFiles{log: log}
}

// Write writes s to path and tracks the file
func (tf *TempFiles) Write(path string, s types.Series) error {
	if err := Write(path, s); err != nil {
		return err
	}
	if !tf.tracked(path) {
		tf.paths = append(tf.paths, path)
	}
	LogSaved(tf.log, path, len(s))
	return nil
}

func (tf *TempFiles) tracked(path string) bool {
	for _, p := range tf.paths {
		if p == path {
			return true
		}
	}
	return false
}

// Paths returns the tracked files
func (tf *TempFiles) Paths() []string {
	return append([]string(nil), tf.paths...)
}

// Cleanup removes every tracked file and returns how many were removed.
// Failures are logged and do not stop the cleanup.
func (tf *TempFiles) Cleanup() int {
	removed := 0
	for _, path := range tf.paths {
		if err := os.Remove(path); err != nil {
			tf.log.WithError(err).Errorf("Error deleting %s", filepath.Base(path))
			continue
		}
		removed++
		tf.log.Infof("Deleted: %s", filepath.Base(path))
	}
	tf.paths = tf.paths[:0]
	return removed
}

// LogSaved reports a written series file with its row count and size
func LogSaved(log *logrus.Entry, path string, rows int) {
	fields := logrus.Fields{"rows": rows}
	if info, err := os.Stat(path); err == nil {
		fields["size"] = humanize.Bytes(uint64(info.Size()))
	}
	log.WithFields(fields).Infof("Saved: %s (%d rows)", filepath.Base(path), rows)
}
