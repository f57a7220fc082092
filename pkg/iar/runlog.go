package iar

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LogHeader is the first line of every run log
const LogHeader = "Iteration,Atlases,Qvalue,Threshold"

// runLog is the append-only per-run log. Only the controller writes to it.
type runLog struct {
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func openRunLog(path string) (*runLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	l := &runLog{f: f, w: bufio.NewWriter(f)}
	if err := l.writeLine(LogHeader); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// writeIteration appends one row and flushes it to disk
func (l *runLog) writeIteration(rec *IterationRecord) error {
	return l.writeLine(FormatLogRow(rec))
}

func (l *runLog) writeLine(line string) error {
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush log: %w", err)
	}
	return nil
}

// Close releases the file. It is safe to call more than once.
func (l *runLog) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	flushErr := l.w.Flush()
	if err := l.f.Close(); err != nil {
		return err
	}
	return flushErr
}

// FormatLogRow renders an iteration as
// iteration,<space-joined ids>,<space-joined Q %.4g>,<threshold %.4g>
func FormatLogRow(rec *IterationRecord) string {
	scores := make([]string, len(rec.Scores))
	for i, q := range rec.Scores {
		scores[i] = fmt.Sprintf("%.4g", q)
	}
	return fmt.Sprintf("%d,%s,%s,%.4g",
		rec.Iteration, strings.Join(rec.AtlasIDs, " "), strings.Join(scores, " "), rec.Threshold)
}

// LogEntry is one parsed log row
type LogEntry struct {
	Iteration int
	AtlasIDs  []string
	Scores    []float64
	Threshold float64
}

// ReadLog parses a run log written by a Remover
func ReadLog(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if line == 1 {
			if text != LogHeader {
				return nil, fmt.Errorf("%s: unexpected header %q", path, text)
			}
			continue
		}
		if text == "" {
			continue
		}
		entry, err := parseLogRow(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLogRow(text string) (LogEntry, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 4 {
		return LogEntry{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	var entry LogEntry
	var err error
	if entry.Iteration, err = strconv.Atoi(fields[0]); err != nil {
		return LogEntry{}, fmt.Errorf("bad iteration: %w", err)
	}
	entry.AtlasIDs = strings.Fields(fields[1])
	for _, s := range strings.Fields(fields[2]) {
		q, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return LogEntry{}, fmt.Errorf("bad Q-value: %w", err)
		}
		entry.Scores = append(entry.Scores, q)
	}
	if len(entry.Scores) != len(entry.AtlasIDs) {
		return LogEntry{}, fmt.Errorf("%d atlases but %d Q-values", len(entry.AtlasIDs), len(entry.Scores))
	}
	if entry.Threshold, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return LogEntry{}, fmt.Errorf("bad threshold: %w", err)
	}
	return entry, nil
}
