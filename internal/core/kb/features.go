// Package kb 内存问题诊断知识库
//
// 从压力采样序列提取统计特征，按规则归类为压力模式，再与
// 案例库匹配给出根因与处置建议。匹配置信度不足时退回按模式
// 合成的通用建议，诊断永远给出结论而不是报错。
package kb

import (
	"math"

	"github.com/visionclip/memfuse/pkg/types"
)

// ExtractFeatures 从采样序列提取统计特征
// 序列不足2个点时返回仅含当前值的退化特征
func ExtractFeatures(series []float64) types.PressureFeatures {
	n := len(series)
	if n == 0 {
		return types.PressureFeatures{}
	}

	features := types.PressureFeatures{Current: series[n-1]}
	if n == 1 {
		features.Mean = series[0]
		features.Min = series[0]
		features.Max = series[0]
		return features
	}

	var sum float64
	features.Min = series[0]
	features.Max = series[0]
	for _, v := range series {
		sum += v
		if v < features.Min {
			features.Min = v
		}
		if v > features.Max {
			features.Max = v
		}
	}
	features.Mean = sum / float64(n)
	features.Range = features.Max - features.Min

	var variance float64
	for _, v := range series {
		variance += (v - features.Mean) * (v - features.Mean)
	}
	features.Std = math.Sqrt(variance / float64(n))

	if series[0] != 0 {
		features.GrowthRate = (series[n-1] - series[0]) / series[0]
	}
	if n >= 3 {
		features.RecentGrowth = series[n-1] - series[n-3]
	} else {
		features.RecentGrowth = series[n-1] - series[0]
	}
	if features.Mean != 0 {
		features.Volatility = features.Std / features.Mean
	}
	features.Trend = fitSlope(series)

	return features
}

// fitSlope 最小二乘拟合斜率，横轴取采样序号
func fitSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range series {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// ClassifyPattern 按规则把特征归类为压力模式
//
// 规则自上而下首次命中即返回，顺序即优先级：
// 越靠前的模式对处置时效的要求越高。
func ClassifyPattern(f types.PressureFeatures) types.PatternType {
	switch {
	case f.Trend > 5 && f.Range > 30:
		return types.PatternRapidIncrease
	case f.Trend > 0.5 && f.Trend < 5 && f.Volatility < 0.2:
		return types.PatternSteadyIncrease
	case f.Range > 40 && f.Volatility > 0.3:
		return types.PatternSpike
	case f.Volatility > 0.25 && math.Abs(f.Trend) < 1:
		return types.PatternFluctuation
	case f.Mean > 75 && f.Volatility < 0.15:
		return types.PatternPlateauHigh
	case f.Min > 60:
		return types.PatternImmediateHigh
	case f.Trend > 0:
		return types.PatternGradualIncrease
	case f.Trend < 0:
		return types.PatternGradualDecrease
	default:
		return types.PatternStable
	}
}

// deriveSymptoms 从特征推导观测到的症状标签，供案例匹配打分
func deriveSymptoms(f types.PressureFeatures) []string {
	var symptoms []string
	if f.Trend > 5 {
		symptoms = append(symptoms, "快速增长")
	} else if f.Trend > 0.5 {
		symptoms = append(symptoms, "持续增长")
	}
	if f.Mean > 75 {
		symptoms = append(symptoms, "高位运行")
	}
	if f.Volatility > 0.25 {
		symptoms = append(symptoms, "剧烈波动")
	}
	if f.RecentGrowth > 15 {
		symptoms = append(symptoms, "近期陡升")
	}
	if f.Current > 90 {
		symptoms = append(symptoms, "逼近上限")
	}
	return symptoms
}
