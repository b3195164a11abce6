package quality

import (
	"fmt"
	"strings"
)

// Report 将一组分析渲染为 Markdown 报告，供 TUI 用 glamour 展示
// Report renders a set of analyses as a markdown document for terminal
// display.
func Report(analyses []BatchSizeAnalysis, rec Recommendation, haveRec bool) string {
	var b strings.Builder

	b.WriteString("# Batch Size Analysis\n\n")
	b.WriteString("| Batch Size | Batches | Cycles | Final Quality | Efficiency |\n")
	b.WriteString("|-----------:|--------:|-------:|--------------:|-----------:|\n")
	for _, a := range analyses {
		marker := ""
		if haveRec && a.BatchSize == rec.Analysis.BatchSize {
			marker = " ★"
		}
		fmt.Fprintf(&b, "| %d%s | %d | %d | %.1f%% | %.3f |\n",
			a.BatchSize, marker, a.TotalBatches, a.FeedbackCycles,
			a.ProjectedFinalQuality*100, a.EfficiencyScore)
	}

	if haveRec {
		fmt.Fprintf(&b, "\n## Recommended: %d\n\n", rec.Analysis.BatchSize)
		for _, r := range rec.Reasoning {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n**Trade-offs**\n\n")
		for _, t := range rec.Tradeoffs {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}

	return b.String()
}
