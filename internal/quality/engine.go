// Package quality 实现指数质量投影模型：估计反馈周期频率对产出质量的影响
// Package quality implements the exponential quality projection model,
// estimating how feedback-cycle frequency affects output quality. All
// functions are pure; nothing here talks to a backend or keeps state.
//
// The constants are product heuristics carried over from the original
// tool unchanged: there is no empirical ground truth to re-fit them
// against, so "improving" them would only diverge from observed behavior.
package quality

import "math"

const (
	// BaseQuality 无任何反馈时的基线质量
	// BaseQuality is the floor quality with zero feedback cycles.
	BaseQuality = 0.6

	// ImprovementPerCycle 每个反馈周期的复利改进率
	// ImprovementPerCycle is the compounded improvement per feedback cycle.
	ImprovementPerCycle = 0.15

	// QualityCeiling 投影质量的上限
	// QualityCeiling caps the projected quality.
	QualityCeiling = 0.95

	compoundingScale = 0.05
	compoundingCap   = 0.30
)

// Metrics 某个批次序号下的完整质量指标
// Metrics is the full quality tuple at one batch number.
type Metrics struct {
	BatchNumber       int     `json:"batch_number"`
	FeedbackCycles    int     `json:"feedback_cycles"`
	ExponentialGrowth float64 `json:"exponential_growth"`
	CompoundingFactor float64 `json:"compounding_factor"`
	ImprovementRate   float64 `json:"improvement_rate"`
	Quality           float64 `json:"quality"`
}

// FeedbackCycles 到第 batchNumber 批为止经历的反馈周期数。
// 批大小越小，反馈周期越密。
// FeedbackCycles is how many feedback cycles have occurred by batchNumber.
// Smaller batch sizes yield more frequent cycles.
func FeedbackCycles(batchNumber, batchSize int) int {
	if batchNumber <= 0 {
		return 0
	}
	interval := math.Max(1, float64(batchSize)/10)
	return int(math.Floor(float64(batchNumber) / interval))
}

// At 计算给定批次序号与批大小下的质量指标
// At computes the quality metrics for a batch number and batch size.
func At(batchNumber, batchSize int) Metrics {
	cycles := FeedbackCycles(batchNumber, batchSize)
	growth := BaseQuality * math.Pow(1+ImprovementPerCycle, float64(cycles))
	compounding := math.Min(compoundingScale*math.Log(float64(cycles)+1), compoundingCap)
	q := math.Min(growth+compounding, QualityCeiling)
	if q < BaseQuality {
		q = BaseQuality
	}
	return Metrics{
		BatchNumber:       batchNumber,
		FeedbackCycles:    cycles,
		ExponentialGrowth: growth,
		CompoundingFactor: compounding,
		ImprovementRate:   math.Pow(1+ImprovementPerCycle, float64(cycles)) - 1,
		Quality:           q,
	}
}

// Quality 给定批次序号与批大小下的投影质量，始终落在 [BaseQuality, QualityCeiling]
// Quality is the projected quality at a batch number for a batch size,
// always within [BaseQuality, QualityCeiling].
func Quality(batchNumber, batchSize int) float64 {
	return At(batchNumber, batchSize).Quality
}

// Curve 返回 [0, totalBatches) 上每一批的质量指标
// Curve returns per-batch metrics over [0, totalBatches).
func Curve(totalBatches, batchSize int) []Metrics {
	if totalBatches <= 0 {
		return nil
	}
	out := make([]Metrics, 0, totalBatches)
	for b := 0; b < totalBatches; b++ {
		out = append(out, At(b, batchSize))
	}
	return out
}
