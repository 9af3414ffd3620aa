// Package audit implements the rotate-at-1000 JSON audit log (spec §9): a
// read-modify-write append, with rotation into a timestamped archive once
// the main file reaches 1000 records.
//
// The original implementation guards the read-modify-write with a
// cross-platform file lock (fcntl on Unix, msvcrt on Windows) so that
// multiple OS processes sharing one file never interleave writes. HashPass
// is a single Go process, so the same single-writer invariant is satisfied
// more simply by routing every append through one goroutine that owns the
// file exclusively — no OS-level lock is needed because nothing else in
// the process ever opens verify.json. This is the adaptation permitted by
// spec §9: "a reimplementation on a parallel runtime must serialize writes
// (file-lock or dedicated writer)".
package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Record is one verified-solution entry, persisted verbatim.
type Record struct {
	VisitorID        string  `json:"visitor_id"`
	Seed             string  `json:"seed"`
	Nonce            uint64  `json:"nonce"`
	Hash             string  `json:"hash"`
	Difficulty       int     `json:"difficulty"`
	SolveTime        float64 `json:"solve_time"`
	InviteCode       string  `json:"invite_code"`
	Timestamp        string  `json:"timestamp"`
	RealIP           string  `json:"real_ip"`
	TraceData        string  `json:"trace_data"`
	NewDifficulty    int     `json:"new_difficulty"`
	AdjustmentReason string  `json:"adjustment_reason"`
}

const rotateAt = 1000

// Log is a single-writer JSON audit log.
type Log struct {
	path    string
	entries chan Record
	done    chan struct{}
}

// Open starts the writer goroutine for the audit log at path. Callers must
// call Close at shutdown to drain any queued records.
func Open(path string) *Log {
	l := &Log{
		path:    path,
		entries: make(chan Record, 256),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Append enqueues rec for the writer goroutine; it never blocks the caller
// on file I/O (spec §4.1 step 15: "schedule the audit-log append").
func (l *Log) Append(rec Record) {
	select {
	case l.entries <- rec:
	default:
		slog.Warn("audit log queue full, dropping record", "visitor_id", rec.VisitorID)
	}
}

// Close stops accepting new records and waits for the writer to drain.
func (l *Log) Close() {
	close(l.entries)
	<-l.done
}

func (l *Log) run() {
	defer close(l.done)
	for rec := range l.entries {
		if err := l.writeOne(rec); err != nil {
			slog.Error("failed to write audit record", "err", err)
		}
	}
}

func (l *Log) writeOne(rec Record) error {
	records, err := l.readExisting()
	if err != nil {
		return err
	}

	if len(records) >= rotateAt {
		if err := l.archive(records); err != nil {
			return err
		}
		records = nil
	}

	records = append(records, rec)
	return l.writeAtomic(records)
}

func (l *Log) readExisting() ([]Record, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (l *Log) archive(records []Record) error {
	timestamp := time.Now().Format("20060102_150405")
	archivePath := filepath.Join(filepath.Dir(l.path), "verify_"+timestamp+".json")

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		return err
	}
	slog.Info("audit log rotated", "records", len(records), "archive", archivePath)
	return nil
}

// writeAtomic writes records to a temp file then renames it over the main
// file, so a concurrent reader never observes a partially-written array.
func (l *Log) writeAtomic(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tempPath := l.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, l.path)
}

// RecentSolveTimes loads up to n most recent solve times from the log, for
// the Difficulty Controller's startup warm-start (spec §4.2).
func RecentSolveTimes(path string, n int) []float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}

	if len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]float64, 0, len(records))
	for _, r := range records {
		out = append(out, r.SolveTime)
	}
	return out
}
