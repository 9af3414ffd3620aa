package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndClose_WritesRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verify.json")

	log := Open(path)
	log.Append(Record{VisitorID: "v1", Seed: "s1", Nonce: 42, Difficulty: 4, InviteCode: "abc1234567"})
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected audit file to exist: %v", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("expected valid JSON array: %v", err)
	}
	if len(records) != 1 || records[0].VisitorID != "v1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestWriteOne_RotatesAt1000Records(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verify.json")
	l := &Log{path: path}

	existing := make([]Record, rotateAt)
	for i := range existing {
		existing[i] = Record{VisitorID: "old"}
	}
	data, _ := json.Marshal(existing)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	if err := l.writeOne(Record{VisitorID: "new"}); err != nil {
		t.Fatalf("writeOne failed: %v", err)
	}

	records, err := l.readExisting()
	if err != nil {
		t.Fatalf("readExisting failed: %v", err)
	}
	if len(records) != 1 || records[0].VisitorID != "new" {
		t.Fatalf("expected main file to contain only the new record after rotation, got %+v", records)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	foundArchive := false
	for _, e := range entries {
		if e.Name() != "verify.json" {
			foundArchive = true
		}
	}
	if !foundArchive {
		t.Fatalf("expected an archive file to be created on rotation")
	}
}

func TestRecentSolveTimes_ReturnsMostRecentN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verify.json")

	var records []Record
	for i := 1; i <= 10; i++ {
		records = append(records, Record{SolveTime: float64(i)})
	}
	data, _ := json.Marshal(records)
	os.WriteFile(path, data, 0o644)

	got := RecentSolveTimes(path, 3)
	if len(got) != 3 || got[0] != 8 || got[2] != 10 {
		t.Fatalf("expected last 3 solve times [8 9 10], got %v", got)
	}
}

func TestRecentSolveTimes_MissingFileReturnsNil(t *testing.T) {
	got := RecentSolveTimes(filepath.Join(t.TempDir(), "missing.json"), 5)
	if got != nil {
		t.Fatalf("expected nil for missing file, got %v", got)
	}
}

func TestAppend_DropsWhenQueueFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verify.json")

	l := &Log{path: path, entries: make(chan Record), done: make(chan struct{})}
	l.Append(Record{VisitorID: "dropped"})
}
