package provider

import "datasmith/internal/dataset"

// OpenAICatalog 无需调用 API 即可使用的托管模型清单。
// API key 缺失时发现流程仍可展示这些模型。
// OpenAICatalog is the static catalog of hosted models. Discovery can
// offer these even before an API key is configured.
func OpenAICatalog() []dataset.Model {
	entries := []struct {
		id, name, size string
	}{
		{"gpt-4.1-nano", "GPT-4.1 Nano", "Cloud"},
		{"gpt-4.1-mini", "GPT-4.1 Mini", "Cloud"},
		{"gpt-4o-mini", "GPT-4o Mini", "Cloud"},
		{"gpt-4o", "GPT-4o", "Cloud"},
	}
	models := make([]dataset.Model, 0, len(entries))
	for _, e := range entries {
		models = append(models, dataset.Model{
			ID:           e.id,
			Name:         e.name,
			Size:         e.size,
			Provider:     dataset.ProviderOpenAI,
			Capabilities: InferCapabilities(e.id),
		})
	}
	return models
}
