package kb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/pkg/types"
)

// TestExtractFeatures 测试特征提取
func TestExtractFeatures(t *testing.T) {
	t.Run("基础统计量", func(t *testing.T) {
		f := ExtractFeatures([]float64{40, 50, 60})

		assert.InDelta(t, 50.0, f.Mean, 0.001)
		assert.InDelta(t, 40.0, f.Min, 0.001)
		assert.InDelta(t, 60.0, f.Max, 0.001)
		assert.InDelta(t, 20.0, f.Range, 0.001)
		assert.InDelta(t, 60.0, f.Current, 0.001)
		assert.InDelta(t, 10.0, f.Trend, 0.001, "完美线性序列的斜率")
		assert.InDelta(t, 0.5, f.GrowthRate, 0.001)
		assert.InDelta(t, 20.0, f.RecentGrowth, 0.001)
	})

	t.Run("空序列返回零值", func(t *testing.T) {
		f := ExtractFeatures(nil)
		assert.Zero(t, f.Mean)
		assert.Zero(t, f.Trend)
	})

	t.Run("平坦序列波动率为零", func(t *testing.T) {
		f := ExtractFeatures([]float64{50, 50, 50, 50})
		assert.Zero(t, f.Std)
		assert.Zero(t, f.Volatility)
		assert.Zero(t, f.Trend)
	})
}

// TestClassifyPattern 测试模式分类
func TestClassifyPattern(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		want   types.PatternType
	}{
		{"快速增长", []float64{30, 35, 42, 55, 70, 82, 95}, types.PatternRapidIncrease},
		{"平稳增长", []float64{50, 51, 52.5, 54, 55, 56.5, 58}, types.PatternSteadyIncrease},
		{"高位平台", []float64{84, 85, 86, 85, 84, 85}, types.PatternPlateauHigh},
		{"启动即高位", []float64{65, 68, 64, 70, 66}, types.PatternImmediateHigh},
		{"平稳", []float64{50, 50, 50, 50}, types.PatternStable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			features := ExtractFeatures(tc.series)
			assert.Equal(t, tc.want, ClassifyPattern(features))
		})
	}
}

// TestDiagnose 测试诊断匹配
func TestDiagnose(t *testing.T) {
	kb := NewKnowledgeBase(zap.NewNop())

	t.Run("快速增长匹配OOM案例", func(t *testing.T) {
		report := kb.Diagnose([]float64{30, 35, 42, 55, 70, 82, 95}, nil)

		assert.Equal(t, types.PatternRapidIncrease, report.Pattern)
		assert.False(t, report.Generic)
		assert.Contains(t, []string{"OOM_001", "OOM_003"}, report.MatchedCase)
		assert.GreaterOrEqual(t, report.Confidence, confidenceFloor)
		assert.NotEmpty(t, report.RootCause)
		assert.NotEmpty(t, report.Solution)
	})

	t.Run("运行上下文提高匹配分", func(t *testing.T) {
		series := []float64{30, 35, 42, 55, 70, 82, 95}
		plain := kb.Diagnose(series, nil)
		withCtx := kb.Diagnose(series, map[string]string{"task": "模型加载"})
		assert.GreaterOrEqual(t, withCtx.Confidence, plain.Confidence)
	})

	t.Run("无匹配案例时退回通用建议", func(t *testing.T) {
		// 平稳序列没有对应案例
		report := kb.Diagnose([]float64{50, 50, 50, 50}, nil)

		assert.True(t, report.Generic)
		assert.Empty(t, report.MatchedCase)
		assert.NotEmpty(t, report.Solution, "通用建议仍然给出处置方向")
	})

	t.Run("附带次优匹配", func(t *testing.T) {
		report := kb.Diagnose([]float64{30, 35, 42, 55, 70, 82, 95}, nil)
		assert.LessOrEqual(t, len(report.SimilarCases), maxSimilarCases)
	})
}

// TestPatternAffinity 测试模式相关度打分
func TestPatternAffinity(t *testing.T) {
	t.Run("精确匹配满分", func(t *testing.T) {
		assert.Equal(t, 1.0, patternMatch(types.PatternRapidIncrease, types.PatternRapidIncrease))
	})

	t.Run("近邻模式获得部分相关度", func(t *testing.T) {
		assert.Equal(t, 0.7, patternMatch(types.PatternRapidIncrease, types.PatternSpike))
		assert.Equal(t, 0.6, patternMatch(types.PatternRapidIncrease, types.PatternSteadyIncrease))
		assert.Equal(t, 0.8, patternMatch(types.PatternGradualIncrease, types.PatternSteadyIncrease))
		assert.Equal(t, 0.6, patternMatch(types.PatternImmediateHigh, types.PatternPlateauHigh))
	})

	t.Run("相关度不对称", func(t *testing.T) {
		// fragmentation 与 gradual_increase 只有单向低相关
		assert.Equal(t, 0.3, patternMatch(types.PatternFragmentation, types.PatternGradualIncrease))
		assert.Equal(t, affinityFloor, patternMatch(types.PatternGradualIncrease, types.PatternFragmentation))
	})

	t.Run("无关模式取兜底相关度", func(t *testing.T) {
		assert.Equal(t, affinityFloor, patternMatch(types.PatternStable, types.PatternRapidIncrease))
		assert.Equal(t, affinityFloor, patternMatch(types.PatternGradualDecrease, types.PatternSpike))
	})

	t.Run("症状吻合的近邻案例可越过置信下限", func(t *testing.T) {
		c := types.DiagnosisCase{
			Pattern:  types.PatternSpike,
			Symptoms: "瞬时峰值，近期陡升",
		}
		score := matchScore(c, types.PatternRapidIncrease, []string{"近期陡升"}, nil)
		assert.InDelta(t, 0.5*0.7+0.3, score, 0.001)
		assert.GreaterOrEqual(t, score, confidenceFloor)
	})
}

// TestLearn 测试案例学习与编号
func TestLearn(t *testing.T) {
	kb := NewKnowledgeBase(zap.NewNop())

	t.Run("按模式前缀递增编号", func(t *testing.T) {
		learned, err := kb.Learn(types.DiagnosisCase{
			Pattern:   types.PatternSteadyIncrease,
			Symptoms:  "持续增长，撤销栈无限膨胀",
			RootCause: "撤销历史未设上限",
			Solution:  "限制撤销历史条数",
			Severity:  "medium",
		})
		require.NoError(t, err)
		// 内置案例已有 LEAK_001/LEAK_002
		assert.Equal(t, "LEAK_003", learned.ID)
	})

	t.Run("学习后可被匹配", func(t *testing.T) {
		before := len(kb.Cases())
		_, err := kb.Learn(types.DiagnosisCase{
			Pattern:   types.PatternSpike,
			Symptoms:  "导出4K片段时出现瞬时峰值",
			RootCause: "4K帧缓冲一次性分配",
			Solution:  "分块读取4K帧",
			Severity:  "high",
		})
		require.NoError(t, err)
		assert.Len(t, kb.Cases(), before+1)
	})

	t.Run("拒绝不完整的案例", func(t *testing.T) {
		_, err := kb.Learn(types.DiagnosisCase{Pattern: types.PatternSpike})
		assert.Error(t, err)
	})
}

// TestExportImport 测试案例导出与导入
func TestExportImport(t *testing.T) {
	kb := NewKnowledgeBase(zap.NewNop())
	path := filepath.Join(t.TempDir(), "cases.json")

	learned, err := kb.Learn(types.DiagnosisCase{
		Pattern:   types.PatternFluctuation,
		Symptoms:  "测试用例",
		RootCause: "测试根因",
		Solution:  "测试方案",
		Severity:  "low",
	})
	require.NoError(t, err)
	require.NoError(t, kb.Export(path))

	fresh := NewKnowledgeBase(zap.NewNop())
	baseline := len(fresh.Cases())

	count, err := fresh.Import(path)
	require.NoError(t, err)
	assert.Equal(t, baseline+1, count, "内置案例同ID覆盖，新案例追加")
	assert.Len(t, fresh.Cases(), baseline+1)

	var found bool
	for _, c := range fresh.Cases() {
		if c.ID == learned.ID {
			found = true
			assert.Equal(t, "测试根因", c.RootCause)
		}
	}
	assert.True(t, found)
}
