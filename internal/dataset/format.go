package dataset

import (
	"fmt"
	"strings"
)

// Format 数据集条目的结构格式
// Format is the structural format of dataset entries.
type Format string

const (
	FormatAlpaca             Format = "alpaca"
	FormatConversation       Format = "conversation"
	FormatChainOfThought     Format = "chain_of_thought"
	FormatPreferenceRanking  Format = "preference_ranking"
	FormatFunctionCall       Format = "function_call"
	FormatMultiRoundDialogue Format = "multi_round_dialogue"
	FormatCodeTask           Format = "code_task"
	FormatReflection         Format = "reflection"
	FormatRetrievalEmbedding Format = "retrieval_embedding"
	FormatReranking          Format = "reranking"
)

// Formats 全部支持的格式，按向导展示顺序排列
// Formats lists every supported format in wizard display order.
func Formats() []Format {
	return []Format{
		FormatAlpaca,
		FormatConversation,
		FormatChainOfThought,
		FormatPreferenceRanking,
		FormatFunctionCall,
		FormatMultiRoundDialogue,
		FormatCodeTask,
		FormatReflection,
		FormatRetrievalEmbedding,
		FormatReranking,
	}
}

// ParseFormat 解析格式标签，未知标签回退 alpaca
// ParseFormat parses a format tag, falling back to alpaca for unknown tags.
func ParseFormat(s string) Format {
	tag := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range Formats() {
		if tag == f {
			return f
		}
	}
	return FormatAlpaca
}

// PromptInstruction 返回该格式在生成 prompt 中的字段说明
// PromptInstruction returns the per-format field instruction used in
// generation prompts.
func (f Format) PromptInstruction() string {
	switch f {
	case FormatAlpaca:
		return "Format each as JSON with fields: instruction, input, output."
	case FormatConversation:
		return "Format each as JSON with a 'messages' array containing objects with 'role' (user/assistant) and 'content' fields."
	case FormatChainOfThought:
		return "Format each as JSON with fields: question, answer (including step-by-step reasoning)."
	case FormatPreferenceRanking:
		return "Format each as JSON with fields: prompt, chosen, rejected."
	case FormatFunctionCall:
		return "Format each as JSON with fields: messages (conversation), function (name and arguments)."
	case FormatMultiRoundDialogue:
		return "Format each as JSON with fields: instruction, conversation (array of role/content objects)."
	case FormatCodeTask:
		return "Format each as JSON with fields: prompt, code, output."
	case FormatReflection:
		return "Format each as JSON with fields: instruction, output, reflection, corrected."
	case FormatRetrievalEmbedding:
		return "Format each as JSON with fields: query, positive_passage, negative_passages (array)."
	case FormatReranking:
		return "Format each as JSON with fields: query, documents (array of text), relevance_scores (array of floats)."
	default:
		return "Format each as JSON with fields: instruction, input, output."
	}
}

// Description 面向用户的一句话描述，用于用例建议 prompt
// Description is the human-facing one-liner used in suggestion prompts.
func (f Format) Description() string {
	switch f {
	case FormatAlpaca:
		return "instruction-following tasks with clear input-output pairs"
	case FormatConversation:
		return "multi-turn dialogue and chat-based interactions"
	case FormatChainOfThought:
		return "step-by-step reasoning and problem-solving"
	case FormatPreferenceRanking:
		return "response quality comparison and preference learning"
	case FormatFunctionCall:
		return "API integration and tool usage"
	case FormatMultiRoundDialogue:
		return "complex multi-agent conversations"
	case FormatCodeTask:
		return "code generation, debugging, and programming tasks"
	case FormatReflection:
		return "self-correction and iterative improvement"
	case FormatRetrievalEmbedding:
		return "information retrieval and semantic search"
	case FormatReranking:
		return "document ranking by query relevance"
	default:
		return "general AI training tasks"
	}
}

// RequiredFields 导出校验所需的字段集合
// RequiredFields is the field set export validation checks for.
func (f Format) RequiredFields() []string {
	switch f {
	case FormatAlpaca:
		return []string{"instruction", "input", "output"}
	case FormatConversation:
		return []string{"messages"}
	case FormatChainOfThought:
		return []string{"question", "answer"}
	case FormatPreferenceRanking:
		return []string{"prompt", "chosen", "rejected"}
	case FormatFunctionCall:
		return []string{"messages", "function"}
	case FormatMultiRoundDialogue:
		return []string{"instruction", "conversation"}
	case FormatCodeTask:
		return []string{"prompt", "code", "output"}
	case FormatReflection:
		return []string{"instruction", "output", "reflection", "corrected"}
	case FormatRetrievalEmbedding:
		return []string{"query", "positive_passage", "negative_passages"}
	case FormatReranking:
		return []string{"query", "documents", "relevance_scores"}
	default:
		return nil
	}
}

// Valid 报告条目是否满足该格式的必需字段
// Valid reports whether an entry satisfies the format's required fields.
func (f Format) Valid(e Entry) bool {
	return e.HasFields(f.RequiredFields()...)
}

// FallbackEntries 当模型输出无法解析时生成占位样例
// FallbackEntries produces placeholder examples when model output cannot
// be parsed.
func FallbackEntries(f Format, count int) []Entry {
	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		entries = append(entries, fallbackEntry(f, i))
	}
	return entries
}

func fallbackEntry(f Format, i int) Entry {
	switch f {
	case FormatConversation:
		return Entry{
			"messages": []any{
				map[string]any{"role": "user", "content": fmt.Sprintf("Sample user message %d", i)},
				map[string]any{"role": "assistant", "content": fmt.Sprintf("Sample assistant response %d", i)},
			},
		}
	case FormatChainOfThought:
		return Entry{
			"question": fmt.Sprintf("Sample question %d", i),
			"answer":   fmt.Sprintf("Step 1: Sample reasoning step. Step 2: Another step. Final Answer: Sample answer %d", i),
		}
	case FormatPreferenceRanking:
		return Entry{
			"prompt":   fmt.Sprintf("Sample prompt %d", i),
			"chosen":   fmt.Sprintf("Good response %d", i),
			"rejected": fmt.Sprintf("Bad response %d", i),
		}
	case FormatFunctionCall:
		return Entry{
			"messages": []any{
				map[string]any{"role": "user", "content": fmt.Sprintf("Sample function call request %d", i)},
			},
			"function": map[string]any{
				"name":      "sample_function",
				"arguments": fmt.Sprintf(`{"param": "value%d"}`, i),
			},
		}
	case FormatMultiRoundDialogue:
		return Entry{
			"instruction": fmt.Sprintf("Sample dialogue instruction %d", i),
			"conversation": []any{
				map[string]any{"role": "user", "content": fmt.Sprintf("Hello %d", i)},
				map[string]any{"role": "assistant", "content": fmt.Sprintf("Hi there! How can I help you today? %d", i)},
			},
		}
	case FormatCodeTask:
		return Entry{
			"prompt": fmt.Sprintf("Sample code task %d", i),
			"code":   fmt.Sprintf("def sample_function():\n    return %d", i),
			"output": fmt.Sprintf("Sample output %d", i),
		}
	case FormatReflection:
		return Entry{
			"instruction": fmt.Sprintf("Sample instruction %d", i),
			"output":      fmt.Sprintf("Initial output %d", i),
			"reflection":  fmt.Sprintf("This could be improved by %d", i),
			"corrected":   fmt.Sprintf("Corrected output %d", i),
		}
	case FormatRetrievalEmbedding:
		return Entry{
			"query":            fmt.Sprintf("Sample query %d", i),
			"positive_passage": fmt.Sprintf("Relevant passage %d", i),
			"negative_passages": []any{
				fmt.Sprintf("Irrelevant passage %d", i),
				fmt.Sprintf("Another irrelevant passage %d", i),
			},
		}
	case FormatReranking:
		return Entry{
			"query": fmt.Sprintf("Sample query %d", i),
			"documents": []any{
				fmt.Sprintf("First document %d", i),
				fmt.Sprintf("Second document %d", i),
				fmt.Sprintf("Third document %d", i),
			},
			"relevance_scores": []any{0.9, 0.7, 0.3},
		}
	default:
		return Entry{
			"instruction": fmt.Sprintf("Sample instruction %d", i),
			"input":       fmt.Sprintf("Sample input %d", i),
			"output":      fmt.Sprintf("Sample output %d", i),
		}
	}
}
