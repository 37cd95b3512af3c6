package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/visionclip/memfuse/pkg/types"
)

// 匹配打分权重
const (
	patternWeight = 0.5
	symptomWeight = 0.3
	contextWeight = 0.2

	// confidenceFloor 低于该置信度不采信案例，退回通用建议
	confidenceFloor = 0.5

	// maxSimilarCases 报告附带的次优匹配数
	maxSimilarCases = 2
)

// patternPrefixes 学习新案例时的编号前缀
var patternPrefixes = map[types.PatternType]string{
	types.PatternRapidIncrease:   "OOM",
	types.PatternSpike:           "OOM",
	types.PatternSteadyIncrease:  "LEAK",
	types.PatternGradualIncrease: "LEAK",
	types.PatternFluctuation:     "CONT",
	types.PatternPlateauHigh:     "CONF",
	types.PatternImmediateHigh:   "CONF",
	types.PatternFragmentation:   "FRAG",
}

// KnowledgeBase 诊断知识库
type KnowledgeBase struct {
	mu     sync.RWMutex
	cases  []types.DiagnosisCase
	logger *zap.Logger
}

// NewKnowledgeBase 创建载入内置案例的知识库
func NewKnowledgeBase(logger *zap.Logger) *KnowledgeBase {
	cases := make([]types.DiagnosisCase, len(seedCases))
	copy(cases, seedCases)
	return &KnowledgeBase{cases: cases, logger: logger}
}

// Cases 返回全部案例的副本
func (kb *KnowledgeBase) Cases() []types.DiagnosisCase {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]types.DiagnosisCase(nil), kb.cases...)
}

// scoredCase 带分数的候选案例
type scoredCase struct {
	c     types.DiagnosisCase
	score float64
}

// Diagnose 对压力采样序列做诊断
//
// context 是可选的运行上下文（如当前任务阶段），参与匹配打分。
// 没有足够置信的案例时返回按模式合成的通用建议，从不报错。
func (kb *KnowledgeBase) Diagnose(series []float64, context map[string]string) *types.DiagnosisReport {
	features := ExtractFeatures(series)
	pattern := ClassifyPattern(features)
	symptoms := deriveSymptoms(features)

	report := &types.DiagnosisReport{
		Pattern:  pattern,
		Features: features,
	}

	kb.mu.RLock()
	candidates := make([]scoredCase, 0, len(kb.cases))
	for _, c := range kb.cases {
		candidates = append(candidates, scoredCase{c: c, score: matchScore(c, pattern, symptoms, context)})
	}
	kb.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) == 0 || candidates[0].score < confidenceFloor {
		kb.fillGeneric(report)
		return report
	}

	best := candidates[0]
	report.MatchedCase = best.c.ID
	report.Confidence = best.score
	report.RootCause = best.c.RootCause
	report.Solution = best.c.Solution
	report.Severity = best.c.Severity

	for _, runner := range candidates[1:] {
		if len(report.SimilarCases) >= maxSimilarCases || runner.score < confidenceFloor {
			break
		}
		report.SimilarCases = append(report.SimilarCases, runner.c.ID)
	}

	if kb.logger != nil {
		kb.logger.Debug("诊断完成",
			zap.String("pattern", string(pattern)),
			zap.String("matched_case", report.MatchedCase),
			zap.Float64("confidence", report.Confidence))
	}
	return report
}

// patternAffinity 相邻模式之间的相关度
// 精确匹配为1.0，表中未列出的组合取低相关兜底值
var patternAffinity = map[types.PatternType]map[types.PatternType]float64{
	types.PatternRapidIncrease: {
		types.PatternSteadyIncrease:  0.6,
		types.PatternSpike:           0.7,
		types.PatternGradualIncrease: 0.5,
	},
	types.PatternSteadyIncrease: {
		types.PatternRapidIncrease:   0.6,
		types.PatternGradualIncrease: 0.8,
		types.PatternPlateauHigh:     0.4,
	},
	types.PatternSpike: {
		types.PatternRapidIncrease: 0.7,
		types.PatternFluctuation:   0.5,
	},
	types.PatternFluctuation: {
		types.PatternSpike: 0.5,
	},
	types.PatternPlateauHigh: {
		types.PatternImmediateHigh:  0.6,
		types.PatternSteadyIncrease: 0.4,
	},
	types.PatternImmediateHigh: {
		types.PatternPlateauHigh: 0.6,
	},
	types.PatternFragmentation: {
		types.PatternGradualIncrease: 0.3,
	},
	types.PatternGradualIncrease: {
		types.PatternSteadyIncrease: 0.8,
		types.PatternRapidIncrease:  0.5,
	},
}

// affinityFloor 相关性表未覆盖的模式组合的兜底相关度
const affinityFloor = 0.1

// patternMatch 计算观测模式与案例模式的相关度
func patternMatch(observed, casePattern types.PatternType) float64 {
	if observed == casePattern {
		return 1.0
	}
	if affinity, ok := patternAffinity[observed][casePattern]; ok {
		return affinity
	}
	return affinityFloor
}

// matchScore 计算案例与观测的匹配分
// 模式相关度占五成，症状标签重叠占三成，运行上下文占两成
func matchScore(c types.DiagnosisCase, pattern types.PatternType, symptoms []string, context map[string]string) float64 {
	score := patternWeight * patternMatch(pattern, c.Pattern)

	if len(symptoms) > 0 {
		matched := 0
		for _, symptom := range symptoms {
			if strings.Contains(c.Symptoms, symptom) {
				matched++
			}
		}
		score += symptomWeight * float64(matched) / float64(len(symptoms))
	}

	if len(context) > 0 {
		haystack := c.Symptoms + c.RootCause + c.Detection
		matched := 0
		for _, value := range context {
			if value != "" && strings.Contains(haystack, value) {
				matched++
			}
		}
		score += contextWeight * float64(matched) / float64(len(context))
	}

	return score
}

// fillGeneric 按模式合成通用建议
func (kb *KnowledgeBase) fillGeneric(report *types.DiagnosisReport) {
	report.Generic = true
	report.Severity = "medium"

	switch report.Pattern {
	case types.PatternRapidIncrease:
		report.RootCause = "内存短时间内快速增长，疑似批量加载或并发失控"
		report.Solution = "检查最近启动的任务，分批处理大块加载，必要时降低并发度"
		report.Severity = "high"
	case types.PatternSteadyIncrease, types.PatternGradualIncrease:
		report.RootCause = "内存持续缓慢增长，疑似存在未释放的累积性资源"
		report.Solution = "检查长生命周期的缓存与索引是否缺少淘汰机制"
	case types.PatternSpike:
		report.RootCause = "内存出现瞬时峰值，疑似单次操作的缓冲无上限"
		report.Solution = "为峰值期间执行的操作增加缓冲上限或分片处理"
	case types.PatternFluctuation:
		report.RootCause = "内存剧烈波动，疑似任务间争用或频繁的大块分配释放"
		report.Solution = "错峰调度后台任务，复用固定尺寸的缓冲"
	case types.PatternPlateauHigh:
		report.RootCause = "内存长期高位运行，常驻占用过大"
		report.Solution = "收缩常驻缓存配置，为任务峰值预留余量"
	case types.PatternImmediateHigh:
		report.RootCause = "启动即高位，基础配置超出机器承受能力"
		report.Solution = "降低模型精度档位或缓存上限后重启"
	default:
		report.RootCause = "未观测到明显异常模式"
		report.Solution = "保持观察，必要时延长采样窗口后重新诊断"
		report.Severity = "low"
	}
}

// Learn 学习新案例并编号入库
// 编号形如 LEAK_003：按模式前缀递增序号
func (kb *KnowledgeBase) Learn(newCase types.DiagnosisCase) (types.DiagnosisCase, error) {
	if newCase.Pattern == "" {
		return types.DiagnosisCase{}, fmt.Errorf("案例缺少压力模式")
	}
	if newCase.RootCause == "" || newCase.Solution == "" {
		return types.DiagnosisCase{}, fmt.Errorf("案例缺少根因或解决方案")
	}

	prefix, ok := patternPrefixes[newCase.Pattern]
	if !ok {
		prefix = "GEN"
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	maxSeq := 0
	for _, c := range kb.cases {
		var seq int
		if _, err := fmt.Sscanf(c.ID, prefix+"_%03d", &seq); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}
	newCase.ID = fmt.Sprintf("%s_%03d", prefix, maxSeq+1)
	kb.cases = append(kb.cases, newCase)

	if kb.logger != nil {
		kb.logger.Info("知识库学习新案例",
			zap.String("case_id", newCase.ID),
			zap.String("pattern", string(newCase.Pattern)))
	}
	return newCase, nil
}

// Export 把全部案例导出为 JSON 文件
func (kb *KnowledgeBase) Export(path string) error {
	kb.mu.RLock()
	data, err := json.MarshalIndent(kb.cases, "", "  ")
	kb.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("序列化案例失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("写入案例文件失败: %w", err)
	}
	return nil
}

// Import 从 JSON 文件导入案例，同 ID 覆盖，返回导入条数
func (kb *KnowledgeBase) Import(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取案例文件失败: %w", err)
	}

	var imported []types.DiagnosisCase
	if err := json.Unmarshal(data, &imported); err != nil {
		return 0, fmt.Errorf("解析案例文件失败: %w", err)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	byID := make(map[string]int, len(kb.cases))
	for i, c := range kb.cases {
		byID[c.ID] = i
	}

	count := 0
	for _, c := range imported {
		if c.ID == "" {
			continue
		}
		if idx, ok := byID[c.ID]; ok {
			kb.cases[idx] = c
		} else {
			byID[c.ID] = len(kb.cases)
			kb.cases = append(kb.cases, c)
		}
		count++
	}
	return count, nil
}
