package tui

import (
	"strings"
	"testing"

	"datasmith/internal/dataset"
	"datasmith/internal/notify"
)

func TestRenderProgressBar_Bounds(t *testing.T) {
	if got := RenderProgressBar(-0.5, 10); strings.Contains(got, "█") {
		t.Fatalf("negative ratio should render empty: %q", got)
	}
	if got := RenderProgressBar(2.0, 10); strings.Contains(got, "░") {
		t.Fatalf("overflowing ratio should render full: %q", got)
	}
	half := RenderProgressBar(0.5, 10)
	if strings.Count(half, "█") != 5 {
		t.Fatalf("half bar: %q", half)
	}
}

func TestRenderRunProgress(t *testing.T) {
	theme := DarkTheme()
	p := dataset.Progress{
		CurrentBatch:     2,
		TotalBatches:     4,
		EntriesGenerated: 50,
		EntriesPerSecond: 12.5,
		PromptTokens:     1234,
		ErrorsCount:      1,
		Status:           dataset.StatusRunning,
	}
	got := RenderRunProgress(p, 60, theme)
	if !strings.Contains(got, "2/4 batches") {
		t.Fatalf("missing batch count: %q", got)
	}
	if !strings.Contains(got, "entries: 50") {
		t.Fatalf("missing entries: %q", got)
	}
	if !strings.Contains(got, "prompt tokens: 1234") {
		t.Fatalf("missing prompt token count: %q", got)
	}
	if !strings.Contains(got, "errors: 1") {
		t.Fatalf("missing errors: %q", got)
	}
}

func TestRenderNotifications(t *testing.T) {
	theme := DarkTheme()
	if got := RenderNotifications(notify.Notifications{}, theme); got != "" {
		t.Fatalf("empty notifications should render nothing: %q", got)
	}
	got := RenderNotifications(notify.Notifications{Error: "boom", Success: "done"}, theme)
	if !strings.Contains(got, "boom") || !strings.Contains(got, "done") {
		t.Fatalf("both slots should render: %q", got)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if got := RenderMarkdown("   ", 80); got != "" {
		t.Fatalf("blank markdown should render empty: %q", got)
	}
}
