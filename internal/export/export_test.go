package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"datasmith/internal/dataset"
)

func sampleEntries() []dataset.Entry {
	return []dataset.Entry{
		{"instruction": "a", "input": "", "output": "x"},
		{"instruction": "a", "input": "", "output": "x"}, // duplicate
		{"instruction": "b", "input": "", "output": "y"},
		{"instruction": "broken"}, // fails validation
	}
}

func TestWriteJSONL(t *testing.T) {
	var sb strings.Builder
	written, skipped, err := WriteJSONL(&sb, sampleEntries(), dataset.FormatAlpaca)
	if err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	if written != 3 || skipped != 1 {
		t.Fatalf("written=%d skipped=%d, want 3/1", written, skipped)
	}

	scanner := bufio.NewScanner(strings.NewReader(sb.String()))
	lines := 0
	for scanner.Scan() {
		var e dataset.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("lines=%d, want 3", lines)
	}
}

func TestDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	res, err := Dataset(path, sampleEntries(), dataset.FormatAlpaca)
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	// 去重在写出前进行 / Dedup happens before writing.
	if res.Written != 2 || res.Skipped != 1 {
		t.Fatalf("res=%+v, want Written=2 Skipped=1", res)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export file missing: %v", err)
	}
}

func TestDataset_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	if _, err := Dataset(path, nil, dataset.FormatAlpaca); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("err=%v, want ErrNoEntries", err)
	}
}

func TestDataset_AllInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	entries := []dataset.Entry{{"instruction": "only"}}
	if _, err := Dataset(path, entries, dataset.FormatAlpaca); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("err=%v, want ErrNoEntries", err)
	}
}

func TestDefaultFilename(t *testing.T) {
	now := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	got := DefaultFilename(dataset.FormatAlpaca, now)
	if got != "dataset_alpaca_20260823_103000.jsonl" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	if got := NormalizePath("out"); got != "out.jsonl" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizePath("out.JSONL"); got != "out.JSONL" {
		t.Fatalf("extension should not be doubled, got %q", got)
	}
	if got := NormalizePath("  "); got != "" {
		t.Fatalf("blank path should stay empty, got %q", got)
	}
}

func TestFixedResolver(t *testing.T) {
	r := FixedResolver{Path: "data/out"}
	got, err := r.Resolve(dataset.FormatAlpaca)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "data/out.jsonl" {
		t.Fatalf("got %q", got)
	}

	if _, err := (FixedResolver{}).Resolve(dataset.FormatAlpaca); err == nil {
		t.Fatal("empty fixed path should error")
	}
}

func TestInteractiveResolver_NonTTYFallsBack(t *testing.T) {
	// go test 下 stdin 不是终端，应直接回退默认路径
	// Under go test stdin is not a terminal, so the resolver falls back.
	fixed := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	r := InteractiveResolver{Dir: t.TempDir(), Now: func() time.Time { return fixed }}
	got, err := r.Resolve(dataset.FormatConversation)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(r.Dir, "dataset_conversation_20260823_103000.jsonl")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
