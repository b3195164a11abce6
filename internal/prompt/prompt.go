// Package prompt 构建发往生成服务的提示词，并解析其自由文本回复
// Package prompt builds the prompts sent to the generation service and
// interprets its free-text replies.
package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"datasmith/internal/dataset"
)

// BatchSystem 批量生成时的 system 提示
// BatchSystem is the system prompt for batch generation requests.
const BatchSystem = "You are an expert at creating high-quality training datasets. " +
	"Always respond with valid JSON arrays containing the requested training examples."

// ImproveSystem 目标改写时的 system 提示
// ImproveSystem is the system prompt for objective-improvement requests.
const ImproveSystem = `You are an expert at creating fine-tuning objectives for AI models. Your task is to improve and refine user-provided fine-tuning goals to make them more specific, structured, and effective for generating high-quality training datasets.

Focus on:
1. Clarity and specificity of the task
2. Clear definition of input and output formats
3. Specific examples of desired behavior
4. Context about the target domain or use case
5. Quality criteria and constraints

Return ONLY the improved fine-tuning goal without any preamble, explanation, or additional text. The response should be the goal itself, ready to use directly in dataset generation.`

// Batch 生成一个批次的完整 user 提示
// Batch builds the full user prompt for one generation batch.
func Batch(goal string, format dataset.Format, batchSize int, context string) string {
	return fmt.Sprintf(`Generate exactly %d high-quality training examples for the following fine-tuning objective:

OBJECTIVE: %s
CONTEXT: %s

Requirements:
1. %s
2. Instructions should be clear, specific, and actionable
3. Ensure diversity in topics, complexity, and formats
4. Make examples realistic and practical

Return ONLY a valid JSON array with no additional text.`,
		batchSize, goal, context, format.PromptInstruction())
}

// BatchContext 第 batchID 批的上下文说明
// BatchContext describes prior progress for batch number batchID.
func BatchContext(batchID, batchSize, targetEntries int) string {
	if batchID == 0 {
		return "This is the first batch of the dataset."
	}
	return fmt.Sprintf("Previous batches completed: %d. Current progress: %d/%d total entries.",
		batchID, batchID*batchSize, targetEntries)
}

// Improve 目标改写的 user 提示
// Improve builds the user prompt for objective improvement.
func Improve(goal string) string {
	return fmt.Sprintf("Improve this fine-tuning goal to make it more structured, specific, and effective for dataset generation:\n\n%s", goal)
}

// Suggestions 用例建议的提示
// Suggestions builds the use-case suggestion prompt.
func Suggestions(format dataset.Format, domainContext string) string {
	domain := strings.TrimSpace(domainContext)
	if domain == "" {
		domain = "any domain"
	}
	return fmt.Sprintf(`Generate exactly 5 specific fine-tuning goals for %s format in the %s domain.

Format: %s

Requirements:
- Each goal should be 1-2 sentences
- Focus on practical, actionable objectives
- Be specific to the domain and format
- Return only the 5 goals, numbered 1-5
- No additional text or explanations

Domain: %s`, format, domain, format.Description(), domain)
}

// improvePreambles 模型常见的客套开场白
// improvePreambles are preamble phrases models commonly prepend.
var improvePreambles = []string{
	"certainly, here is your improved",
	"here is an improved version",
	"here's the improved",
	"improved fine-tuning goal:",
	"here is the refined",
	"certainly! here is",
	"sure, here is",
	"here's a more",
	"i'll improve",
	"let me improve",
}

// CleanImproved 去掉改写结果中的开场白和包裹引号；
// 清理后过短时返回原文。
// CleanImproved strips preamble text and wrapping quotes from an improved
// objective; when cleanup leaves too little, the trimmed original wins.
func CleanImproved(text string) string {
	cleaned := strings.TrimSpace(text)
	result := cleaned

	lower := strings.ToLower(result)
	for _, prefix := range improvePreambles {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		if pos := strings.Index(result, ":"); pos >= 0 {
			result = strings.TrimSpace(result[pos+1:])
		} else if pos := strings.Index(result, "."); pos >= 0 {
			rest := strings.TrimSpace(result[pos+1:])
			if len(rest) > 20 {
				result = rest
			}
		}
		break
	}

	result = strings.Trim(result, `"'`)
	result = strings.TrimSpace(result)

	if len(result) < 20 {
		return cleaned
	}
	return result
}

// ParseSuggestions 从模型输出里提取编号建议，最多 5 条
// ParseSuggestions extracts numbered suggestions from model output,
// capped at 5.
func ParseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if unicode.IsDigit(rune(line[0])) {
			content := strings.TrimLeftFunc(line, func(r rune) bool {
				return unicode.IsDigit(r) || r == '.' || r == ')' || unicode.IsSpace(r)
			})
			content = strings.TrimSpace(content)
			if len(content) > 10 {
				out = append(out, content)
			}
		} else if len(line) > 20 && !strings.Contains(line, "generate") && !strings.Contains(line, "example") {
			// 兜底：不像指令说明的实质性行 / Fallback: substantial lines
			// that do not look like instructions.
			out = append(out, line)
		}
		if len(out) == 5 {
			break
		}
	}
	return out
}

// FallbackSuggestions 模型输出解析为空时的固定建议
// FallbackSuggestions are the canned suggestions used when parsing yields
// nothing.
func FallbackSuggestions(format dataset.Format, domainContext string) []string {
	domain := strings.TrimSpace(domainContext)
	if domain == "" {
		domain = "any domain"
	}
	switch format {
	case dataset.FormatAlpaca:
		return []string{
			fmt.Sprintf("Train the model to follow instructions in %s", domain),
			fmt.Sprintf("Improve task completion accuracy for %s scenarios", domain),
			fmt.Sprintf("Enhance response quality for %s domain questions", domain),
			fmt.Sprintf("Develop expertise in %s problem-solving", domain),
			fmt.Sprintf("Optimize instruction understanding for %s tasks", domain),
		}
	case dataset.FormatConversation:
		return []string{
			fmt.Sprintf("Create engaging dialogues in %s contexts", domain),
			fmt.Sprintf("Improve conversational flow for %s discussions", domain),
			fmt.Sprintf("Enhance multi-turn context retention in %s", domain),
			fmt.Sprintf("Develop natural conversation skills for %s support", domain),
			fmt.Sprintf("Train for appropriate tone in %s interactions", domain),
		}
	case dataset.FormatChainOfThought:
		return []string{
			fmt.Sprintf("Improve step-by-step reasoning for %s problems", domain),
			fmt.Sprintf("Enhance logical thinking in %s analysis", domain),
			fmt.Sprintf("Develop clear explanation skills for %s concepts", domain),
			fmt.Sprintf("Train systematic problem-solving in %s", domain),
			fmt.Sprintf("Improve reasoning transparency for %s decisions", domain),
		}
	default:
		return []string{
			fmt.Sprintf("Enhance performance in %s domain tasks", domain),
			fmt.Sprintf("Improve accuracy for %s related queries", domain),
			fmt.Sprintf("Develop expertise in %s problem solving", domain),
			fmt.Sprintf("Optimize responses for %s use cases", domain),
			fmt.Sprintf("Train for better %s domain understanding", domain),
		}
	}
}
