package prompt

import (
	"strings"
	"testing"

	"datasmith/internal/dataset"
)

func TestBatch_ContainsEssentials(t *testing.T) {
	got := Batch("teach SQL basics", dataset.FormatAlpaca, 25, "This is the first batch of the dataset.")
	for _, want := range []string{
		"exactly 25",
		"teach SQL basics",
		"first batch",
		"instruction",
		"JSON array",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBatchContext(t *testing.T) {
	if got := BatchContext(0, 25, 100); !strings.Contains(got, "first batch") {
		t.Fatalf("batch 0 context = %q", got)
	}
	got := BatchContext(2, 25, 100)
	if !strings.Contains(got, "Previous batches completed: 2") || !strings.Contains(got, "50/100") {
		t.Fatalf("batch 2 context = %q", got)
	}
}

func TestCleanImproved(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{
			name: "plain goal passes through",
			in:   "Train the model to answer legal questions with citations.",
			want: "Train the model to answer legal questions with citations.",
		},
		{
			name: "preamble with colon stripped",
			in:   "Certainly! Here is the improved goal: Train the model to answer legal questions with citations.",
			want: "Train the model to answer legal questions with citations.",
		},
		{
			name: "wrapping quotes stripped",
			in:   `"Train the model to answer legal questions with citations."`,
			want: "Train the model to answer legal questions with citations.",
		},
		{
			name: "too-short result falls back to original",
			in:   "Sure, here is: ok",
			want: "Sure, here is: ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanImproved(tt.in); got != tt.want {
				t.Fatalf("CleanImproved(%q)=%q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSuggestions_Numbered(t *testing.T) {
	text := `1. Train the model for customer support triage
2) Improve summarization of medical reports
3. Short
4. Teach step-by-step math reasoning for exams
5. Generate SQL from natural language questions`

	got := ParseSuggestions(text)
	// 第 3 行太短被丢弃 / Line 3 is too short and gets dropped.
	if len(got) != 4 {
		t.Fatalf("len=%d, want 4: %v", len(got), got)
	}
	if got[0] != "Train the model for customer support triage" {
		t.Fatalf("first = %q", got[0])
	}
	if got[1] != "Improve summarization of medical reports" {
		t.Fatalf("second = %q", got[1])
	}
	if got[2] != "Teach step-by-step math reasoning for exams" {
		t.Fatalf("third = %q", got[2])
	}
}

func TestParseSuggestions_CapsAtFive(t *testing.T) {
	text := `1. First suggestion for the dataset
2. Second suggestion for the dataset
3. Third suggestion for the dataset
4. Fourth suggestion for the dataset
5. Fifth suggestion for the dataset
6. Sixth suggestion for the dataset`
	if got := ParseSuggestions(text); len(got) != 5 {
		t.Fatalf("len=%d, want 5", len(got))
	}
}

func TestParseSuggestions_EmptyOutput(t *testing.T) {
	if got := ParseSuggestions("generate\nexample\n"); len(got) != 0 {
		t.Fatalf("expected nothing, got %v", got)
	}
}

func TestFallbackSuggestions(t *testing.T) {
	for _, f := range dataset.Formats() {
		got := FallbackSuggestions(f, "healthcare")
		if len(got) != 5 {
			t.Fatalf("%s: len=%d, want 5", f, len(got))
		}
		for _, s := range got {
			if !strings.Contains(s, "healthcare") {
				t.Fatalf("%s: suggestion %q missing domain", f, s)
			}
		}
	}
	// 域为空时使用通用域 / Empty domain falls back to the generic one.
	got := FallbackSuggestions(dataset.FormatAlpaca, " ")
	if !strings.Contains(got[0], "any domain") {
		t.Fatalf("empty domain: %q", got[0])
	}
}

func TestTokenizer_HeuristicFallback(t *testing.T) {
	tk := &Tokenizer{encodingName: "cl100k_base", fallback: true}
	if got := tk.CountText(""); got != 0 {
		t.Fatalf("empty text = %d, want 0", got)
	}
	if got := tk.CountText("a"); got < 1 {
		t.Fatalf("single char = %d, want >= 1", got)
	}
	ascii := tk.CountText("hello world this is a prompt")
	cjk := tk.CountText("你好世界你好世界你好世界你好世界")
	if cjk <= ascii/2 && cjk < 10 {
		t.Fatalf("CJK estimate suspiciously low: cjk=%d ascii=%d", cjk, ascii)
	}
	if tk.IsPrecise() {
		t.Fatal("fallback tokenizer must not report precise")
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct{ model, want string }{
		{"gpt-4o", "o200k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"gpt-4.1-nano", "o200k_base"},
		{"gpt-4", "cl100k_base"},
		{"llama3.2", "cl100k_base"},
		{"", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.want {
			t.Fatalf("modelToEncoding(%q)=%q, want %q", tt.model, got, tt.want)
		}
	}
}
