package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"datasmith/internal/dataset"
	"datasmith/internal/notify"
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// RenderProgressBar 渲染定宽进度条，ratio 取值 [0,1]
// RenderProgressBar renders a fixed-width progress bar for a ratio in
// [0,1].
func RenderProgressBar(ratio float64, width int) string {
	if width < 4 {
		width = 4
	}
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// RenderRunProgress 把运行进度渲染为多行文本
// RenderRunProgress renders run progress as a multi-line block
func RenderRunProgress(p dataset.Progress, width int, theme Theme) string {
	if width < 20 {
		width = 20
	}

	ratio := 0.0
	if p.TotalBatches > 0 {
		ratio = float64(p.CurrentBatch) / float64(p.TotalBatches)
	}

	var b strings.Builder
	b.WriteString(RenderProgressBar(ratio, width-12))
	b.WriteString(fmt.Sprintf(" %d/%d batches\n", p.CurrentBatch, p.TotalBatches))
	b.WriteString(fmt.Sprintf("entries: %d   rate: %.1f/s   concurrent: %d   prompt tokens: %d\n",
		p.EntriesGenerated, p.EntriesPerSecond, p.ConcurrentBatches, p.PromptTokens))
	if p.ErrorsCount > 0 || p.RetriesCount > 0 {
		b.WriteString(theme.MutedStyle.Render(
			fmt.Sprintf("errors: %d   retries: %d", p.ErrorsCount, p.RetriesCount)))
		b.WriteString("\n")
	}
	if p.Error != "" {
		b.WriteString(theme.ErrorStyle.Render("✗ " + p.Error))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderNotifications 渲染当前可见的通知，无消息时返回空串
// RenderNotifications renders the visible notifications, or "" when both
// slots are empty
func RenderNotifications(n notify.Notifications, theme Theme) string {
	var parts []string
	if n.Error != "" {
		parts = append(parts, theme.ErrorStyle.Render("✗ "+n.Error))
	}
	if n.Success != "" {
		parts = append(parts, theme.SuccessStyle.Render("✓ "+n.Success))
	}
	return strings.Join(parts, "\n")
}
