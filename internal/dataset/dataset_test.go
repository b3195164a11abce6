package dataset

import "testing"

func TestGenerationConfig_TotalBatches(t *testing.T) {
	tests := []struct {
		target, size, want int
	}{
		{100, 25, 4},
		{101, 25, 5},
		{1, 25, 1},
		{0, 25, 0},
		{100, 0, 0},
	}
	for _, tt := range tests {
		c := GenerationConfig{TargetEntries: tt.target, BatchSize: tt.size}
		if got := c.TotalBatches(); got != tt.want {
			t.Fatalf("TotalBatches(%d,%d)=%d, want %d", tt.target, tt.size, got, tt.want)
		}
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() || StatusRunning.Terminal() {
		t.Fatal("pending/running must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed/failed must be terminal")
	}
}

func TestParseFormat(t *testing.T) {
	if got := ParseFormat("  Chain_Of_Thought "); got != FormatChainOfThought {
		t.Fatalf("got %q", got)
	}
	if got := ParseFormat("nonsense"); got != FormatAlpaca {
		t.Fatalf("unknown tag should fall back to alpaca, got %q", got)
	}
}

func TestFormat_Valid(t *testing.T) {
	e := Entry{"instruction": "do x", "input": "", "output": "done"}
	if !FormatAlpaca.Valid(e) {
		t.Fatal("alpaca entry with all fields should be valid")
	}
	if FormatAlpaca.Valid(Entry{"instruction": "do x"}) {
		t.Fatal("missing fields should be invalid")
	}
	if !FormatConversation.Valid(Entry{"messages": []any{}}) {
		t.Fatal("conversation entry with messages should be valid")
	}
}

func TestFallbackEntries_MatchOwnFormat(t *testing.T) {
	for _, f := range Formats() {
		entries := FallbackEntries(f, 3)
		if len(entries) != 3 {
			t.Fatalf("%s: len=%d, want 3", f, len(entries))
		}
		for i, e := range entries {
			if !f.Valid(e) {
				t.Fatalf("%s: fallback entry %d fails its own format: %v", f, i, e)
			}
		}
	}
}

func TestExtractEntries(t *testing.T) {
	text := `Here are your examples:
[
  {"instruction": "a", "input": "", "output": "b"},
  {"instruction": "c", "input": "", "output": "d"}
]
Hope this helps!`
	entries := ExtractEntries(text, FormatAlpaca, 2)
	if len(entries) != 2 {
		t.Fatalf("len=%d, want 2", len(entries))
	}
	if entries[0].Text("instruction") != "a" {
		t.Fatalf("first instruction = %q", entries[0].Text("instruction"))
	}
}

func TestExtractEntries_FallbackOnGarbage(t *testing.T) {
	entries := ExtractEntries("I cannot produce JSON today.", FormatAlpaca, 3)
	if len(entries) != 3 {
		t.Fatalf("len=%d, want 3 fallback entries", len(entries))
	}
	for _, e := range entries {
		if !FormatAlpaca.Valid(e) {
			t.Fatalf("fallback entry invalid: %v", e)
		}
	}
}

func TestExtractEntries_MalformedJSON(t *testing.T) {
	entries := ExtractEntries(`[{"instruction": "a", `, FormatAlpaca, 2)
	if len(entries) != 2 {
		t.Fatalf("malformed JSON should yield fallback, got %d", len(entries))
	}
}

func TestDedup(t *testing.T) {
	a := Entry{"instruction": "same", "input": "", "output": "x"}
	b := Entry{"instruction": "same", "input": "", "output": "x"}
	c := Entry{"instruction": "other", "input": "", "output": "y"}
	got := Dedup([]Entry{a, b, c})
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	// 保留首见顺序 / First-seen order is preserved.
	if got[0].Text("instruction") != "same" || got[1].Text("instruction") != "other" {
		t.Fatalf("order broken: %v", got)
	}
}
