package dataset

import (
	"encoding/json"
	"strings"
)

// ExtractEntries 从模型输出中提取 JSON 数组并解析为条目；
// 解析失败或为空时返回该格式的占位样例。
// ExtractEntries pulls the JSON array out of model output and parses it
// into entries. On parse failure or an empty array it returns placeholder
// entries for the format, so a run never produces a short batch just
// because one response was malformed.
func ExtractEntries(text string, format Format, expected int) []Entry {
	jsonText := extractArray(text)

	var entries []Entry
	if err := json.Unmarshal([]byte(jsonText), &entries); err != nil || len(entries) == 0 {
		return FallbackEntries(format, expected)
	}
	return entries
}

// extractArray 截取首个 '[' 到最后一个 ']' 之间的内容
// extractArray slices from the first '[' to the last ']' to tolerate
// models that wrap the array in prose.
func extractArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// Dedup 按序列化内容去重，保持原有顺序
// Dedup removes duplicate entries by serialized content, preserving order.
func Dedup(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		key := string(data)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
