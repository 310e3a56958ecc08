// Package datalog is the append-only CSV record of every sensor sample.
package datalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/history"
)

// Header is the first line of every data log.
const Header = "Timestamp,Temperature(C),Humidity(%)"

// MaxRecordLen bounds one log line. Longer lines are malformed records and
// are skipped whole.
const MaxRecordLen = 4096

type Log struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// Open prepares the log at path, creating its directory and a header-only
// file if none exists yet.
func Open(fs afero.Fs, path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Errorf("failed to create data directory: %w", err)
		}
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, xerrors.Errorf("failed to stat data log: %w", err)
	}
	if !exists {
		if err := afero.WriteFile(fs, path, []byte(Header+"\n"), 0o644); err != nil {
			return nil, xerrors.Errorf("failed to create data log: %w", err)
		}
	}
	return &Log{fs: fs, path: path}, nil
}

func (l *Log) Path() string {
	return l.path
}

// Append writes one record to the end of the log.
func (l *Log) Append(s history.Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return xerrors.Errorf("failed to open data log: %w", err)
	}
	if _, err := f.WriteString(FormatRecord(s) + "\n"); err != nil {
		_ = f.Close()
		return xerrors.Errorf("failed to write record: %w", err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("failed to close data log: %w", err)
	}
	return nil
}

// ReadAll returns every well-formed record, oldest first. A missing log is
// an empty history.
func (l *Log) ReadAll() ([]history.Sample, error) {
	return l.read(func(s history.Sample, out []history.Sample) []history.Sample {
		return append(out, s)
	})
}

// ReadTail returns the last n well-formed records, oldest first, without
// holding the whole log in memory.
func (l *Log) ReadTail(n int) ([]history.Sample, error) {
	if n <= 0 {
		return []history.Sample{}, nil
	}
	tail := history.NewRingBuffer[history.Sample](n)
	if _, err := l.read(func(s history.Sample, out []history.Sample) []history.Sample {
		tail.Add(s)
		return out
	}); err != nil {
		return nil, err
	}
	return tail.GetAll(), nil
}

func (l *Log) read(collect func(history.Sample, []history.Sample) []history.Sample) ([]history.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []history.Sample{}
	f, err := l.fs.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, xerrors.Errorf("failed to open data log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReaderSize(f, MaxRecordLen)
	discarding := false
	for {
		line, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			discarding = true
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, xerrors.Errorf("failed to read data log: %w", err)
		}
		if discarding {
			// this is the tail of an over-long line
			discarding = false
		} else if s, ok := ParseRecord(strings.TrimSuffix(string(line), "\n")); ok {
			out = collect(s, out)
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// FormatRecord renders a sample as one log line, without the newline.
func FormatRecord(s history.Sample) string {
	return fmt.Sprintf("%s,%.1f,%.1f", s.Timestamp, s.Temperature, s.Humidity)
}

// ParseRecord parses one log line. The header, blank lines and lines with
// fewer than two separators or non-numeric readings are rejected.
func ParseRecord(line string) (history.Sample, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" || line == Header {
		return history.Sample{}, false
	}
	timestamp, rest, ok := strings.Cut(line, ",")
	if !ok || timestamp == "" {
		return history.Sample{}, false
	}
	tempField, humField, ok := strings.Cut(rest, ",")
	if !ok {
		return history.Sample{}, false
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(tempField), 64)
	if err != nil {
		return history.Sample{}, false
	}
	hum, err := strconv.ParseFloat(strings.TrimSpace(humField), 64)
	if err != nil {
		return history.Sample{}, false
	}
	return history.Sample{
		Temperature: temp,
		Humidity:    hum,
		Timestamp:   timestamp,
	}, true
}
