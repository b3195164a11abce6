package quality

import (
	"fmt"
	"math"
)

// DefaultTargetQuality 推荐器默认的质量门槛
// DefaultTargetQuality is the recommendation threshold used by default.
const DefaultTargetQuality = 0.85

// BatchSizeAnalysis 某个候选批大小的完整评估，按需计算、不落盘
// BatchSizeAnalysis is the full evaluation of one candidate batch size.
// Derived on demand, never stored.
type BatchSizeAnalysis struct {
	BatchSize             int     `json:"batch_size"`
	TotalBatches          int     `json:"total_batches"`
	FeedbackCycles        int     `json:"feedback_cycles"`
	Current               Metrics `json:"current"`
	Final                 Metrics `json:"final"`
	ProjectedFinalQuality float64 `json:"projected_final_quality"`
	ImprovementRate       float64 `json:"improvement_rate"`
	CompoundingFactor     float64 `json:"compounding_factor"`
	TotalQualityValue     float64 `json:"total_quality_value"`
	EfficiencyScore       float64 `json:"efficiency_score"`
}

// AnalyzeBatchSizes 对每个候选批大小评估整个生成过程
// AnalyzeBatchSizes evaluates the whole run for each candidate batch size:
// batch count, quality at the current batch and at completion, the summed
// quality-weighted entry value, and an efficiency score that balances
// small-batch overhead against projected quality.
func AnalyzeBatchSizes(totalEntries, currentBatch int, candidates []int) []BatchSizeAnalysis {
	analyses := make([]BatchSizeAnalysis, 0, len(candidates))
	for _, size := range candidates {
		if size <= 0 || totalEntries <= 0 {
			continue
		}
		totalBatches := (totalEntries + size - 1) / size
		current := At(currentBatch, size)
		final := At(totalBatches, size)

		totalValue := 0.0
		for b := 0; b < totalBatches; b++ {
			totalValue += Quality(b, size) * float64(size)
		}

		efficiency := (1/math.Log(float64(size)+1) +
			float64(final.FeedbackCycles)*0.1 +
			final.Quality) / 3

		analyses = append(analyses, BatchSizeAnalysis{
			BatchSize:             size,
			TotalBatches:          totalBatches,
			FeedbackCycles:        final.FeedbackCycles,
			Current:               current,
			Final:                 final,
			ProjectedFinalQuality: final.Quality,
			ImprovementRate:       final.ImprovementRate,
			CompoundingFactor:     final.CompoundingFactor,
			TotalQualityValue:     totalValue,
			EfficiencyScore:       efficiency,
		})
	}
	return analyses
}

// Recommendation 推荐结果及其人类可读的理由与取舍
// Recommendation is the chosen analysis plus human-readable reasoning
// and trade-offs. It carries no obligation for the orchestrator; applying
// it is an UpdateConfig call made by the caller.
type Recommendation struct {
	Analysis  BatchSizeAnalysis `json:"analysis"`
	MetTarget bool              `json:"met_target"`
	Reasoning []string          `json:"reasoning"`
	Tradeoffs []string          `json:"tradeoffs"`
}

// Recommend 在达到目标质量的候选中取效率最高者；
// 无人达标时取投影质量最高者。平局取输入顺序靠前者。
// Recommend picks the highest-efficiency candidate among those meeting
// targetQuality; when none meet it, the highest projected final quality
// wins. Ties break to the first candidate in input order.
func Recommend(analyses []BatchSizeAnalysis, targetQuality float64) (Recommendation, bool) {
	if len(analyses) == 0 {
		return Recommendation{}, false
	}
	if targetQuality <= 0 {
		targetQuality = DefaultTargetQuality
	}

	bestIdx := -1
	for i, a := range analyses {
		if a.ProjectedFinalQuality < targetQuality {
			continue
		}
		if bestIdx < 0 || a.EfficiencyScore > analyses[bestIdx].EfficiencyScore {
			bestIdx = i
		}
	}
	met := bestIdx >= 0
	if !met {
		bestIdx = 0
		for i, a := range analyses {
			if a.ProjectedFinalQuality > analyses[bestIdx].ProjectedFinalQuality {
				bestIdx = i
			}
		}
	}

	chosen := analyses[bestIdx]
	return Recommendation{
		Analysis:  chosen,
		MetTarget: met,
		Reasoning: reasoningFor(chosen, met, targetQuality),
		Tradeoffs: tradeoffsFor(chosen),
	}, true
}

func reasoningFor(a BatchSizeAnalysis, met bool, target float64) []string {
	reasons := []string{
		fmt.Sprintf("Batch size %d yields %d feedback cycles over %d batches.",
			a.BatchSize, a.FeedbackCycles, a.TotalBatches),
		fmt.Sprintf("Projected final quality is %.0f%%.", a.ProjectedFinalQuality*100),
	}
	if met {
		reasons = append(reasons,
			fmt.Sprintf("Meets the %.0f%% quality target with the best efficiency score (%.3f).",
				target*100, a.EfficiencyScore))
	} else {
		reasons = append(reasons,
			fmt.Sprintf("No candidate reaches the %.0f%% target; this one projects highest.", target*100))
	}
	return reasons
}

func tradeoffsFor(a BatchSizeAnalysis) []string {
	tradeoffs := []string{
		fmt.Sprintf("%d batches means %d round trips to the generation service.",
			a.TotalBatches, a.TotalBatches),
	}
	if a.BatchSize <= 20 {
		tradeoffs = append(tradeoffs,
			"Small batches maximize feedback frequency but increase per-request overhead.")
	} else {
		tradeoffs = append(tradeoffs,
			"Larger batches reduce request overhead but dilute feedback frequency.")
	}
	return tradeoffs
}
