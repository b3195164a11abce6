package knowledge

import (
	"strings"

	"datasmith/internal/dataset"
)

// Scores 单条数据的质量评分，各维度取值 [0,1]
// Scores holds the per-entry quality dimensions, each in [0,1].
type Scores struct {
	Relevance        float64 `json:"relevance"`
	Coherence        float64 `json:"coherence"`
	Completeness     float64 `json:"completeness"`
	FormatCompliance float64 `json:"format_compliance"`
	Overall          float64 `json:"overall"`
}

// ScoreEntry 对一条生成数据打分。启发式评分，不调用模型。
// ScoreEntry scores one generated entry. Heuristic only, no model calls.
func ScoreEntry(entry dataset.Entry, format dataset.Format, objective string) Scores {
	s := Scores{
		Relevance:        scoreRelevance(entry, objective),
		Coherence:        scoreCoherence(entry),
		Completeness:     scoreCompleteness(entry, format),
		FormatCompliance: scoreFormatCompliance(entry, format),
	}
	s.Overall = 0.3*s.Relevance + 0.2*s.Coherence + 0.25*s.Completeness + 0.25*s.FormatCompliance
	return s
}

// scoreRelevance 用目标关键词与条目文本的重叠度近似相关性
// scoreRelevance approximates relevance by keyword overlap between the
// objective and the entry text.
func scoreRelevance(entry dataset.Entry, objective string) float64 {
	words := keywords(objective)
	if len(words) == 0 {
		return 0.5
	}
	text := strings.ToLower(entryText(entry))
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	// 基线 0.4，完全覆盖时 1.0 / Baseline 0.4, full overlap reaches 1.0.
	return 0.4 + 0.6*float64(hits)/float64(len(words))
}

func scoreCoherence(entry dataset.Entry) float64 {
	text := entryText(entry)
	n := len(strings.Fields(text))
	switch {
	case n == 0:
		return 0
	case n < 5:
		return 0.3
	case n < 15:
		return 0.6
	case n < 500:
		return 0.9
	default:
		return 0.7
	}
}

func scoreCompleteness(entry dataset.Entry, format dataset.Format) float64 {
	required := format.RequiredFields()
	if len(required) == 0 {
		return 1
	}
	present := 0
	for _, f := range required {
		v, ok := entry[f]
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr {
			if strings.TrimSpace(s) != "" {
				present++
			}
		} else if v != nil {
			// 非字符串字段（如 messages 数组）算存在
			// Non-string fields such as message arrays count as present.
			present++
		}
	}
	return float64(present) / float64(len(required))
}

func scoreFormatCompliance(entry dataset.Entry, format dataset.Format) float64 {
	if format.Valid(entry) {
		return 1
	}
	// 部分字段在场时给部分分 / Partial credit for partially present fields.
	return 0.5 * scoreCompleteness(entry, format)
}

// keywords 提取目标里有区分度的小写词
// keywords extracts distinguishing lowercase words from the objective.
func keywords(objective string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(objective)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) >= 4 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"with": true, "that": true, "this": true, "from": true, "into": true,
	"model": true, "train": true, "dataset": true, "data": true,
	"should": true, "would": true, "about": true, "their": true,
}

func entryText(entry dataset.Entry) string {
	var b strings.Builder
	for _, v := range entry {
		if s, ok := v.(string); ok {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	return b.String()
}
