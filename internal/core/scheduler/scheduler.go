// Package scheduler 缓解动作调度
//
// 调度器决定一组动作的执行顺序与执行数量：压力未达高位时
// 轻动作先行，把对系统的冲击压到最低；高位时重动作先行，
// 优先争取最大的释放量。
package scheduler

import (
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// 调度阈值
const (
	// heavyFirstIndex 达到该压力指数后重动作优先
	heavyFirstIndex = 90

	// lightLoadIndex 低于该压力指数只执行半数动作
	lightLoadIndex = 70

	// fullLoadIndex 达到该压力指数执行全部动作
	fullLoadIndex = 95
)

// ActionScheduler 动作调度器
// 实现 governor.ActionOrderingStrategy，权重可在运行期重新标定
type ActionScheduler struct {
	mu      sync.Mutex
	weights map[string]float64 // 按动作名的权重覆盖
	logger  *zap.Logger
}

var _ governor.ActionOrderingStrategy = (*ActionScheduler)(nil)

// NewActionScheduler 创建动作调度器
func NewActionScheduler(logger *zap.Logger) *ActionScheduler {
	return &ActionScheduler{
		weights: make(map[string]float64),
		logger:  logger,
	}
}

// RegisterWeight 为动作重新标定冲击权重，越界值收敛到 [0,1]
// 返回实际生效的权重
func (s *ActionScheduler) RegisterWeight(action string, weight float64) float64 {
	clamped := math.Max(0, math.Min(1, weight))

	s.mu.Lock()
	s.weights[action] = clamped
	s.mu.Unlock()

	if s.logger != nil && clamped != weight {
		s.logger.Warn("动作权重越界已收敛",
			zap.String("action", action),
			zap.Float64("requested", weight),
			zap.Float64("effective", clamped))
	}
	return clamped
}

// effectiveWeight 取动作的生效权重，运行期标定优先于目录值
func (s *ActionScheduler) effectiveWeight(action types.MitigationAction) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.weights[action.Name]; ok {
		return w
	}
	return action.ImpactWeight
}

// Order 返回按冲击权重排序的动作副本
//
// 压力指数低于高位线时升序（轻动作先行），达到高位线时降序。
// 返回值总是入参的一个排列，入参不被修改。
func (s *ActionScheduler) Order(actions []types.MitigationAction, pressureIndex float64) []types.MitigationAction {
	ordered := make([]types.MitigationAction, len(actions))
	copy(ordered, actions)

	heavyFirst := pressureIndex >= heavyFirstIndex
	sort.SliceStable(ordered, func(i, j int) bool {
		wi, wj := s.effectiveWeight(ordered[i]), s.effectiveWeight(ordered[j])
		if heavyFirst {
			return wi > wj
		}
		return wi < wj
	})
	return ordered
}

// SelectOptimal 排序后按压力区间截取要执行的动作子集
//
// maxN 是调用方给出的执行数量上限，比例基数取上限与候选数
// 中的较小者。低压只动用半数配额，中压约三分之二，逼近上限
// 时满额出击。子集大小向上取整，至少包含一个动作。
func (s *ActionScheduler) SelectOptimal(actions []types.MitigationAction, pressureIndex float64, maxN int) []types.MitigationAction {
	if len(actions) == 0 {
		return nil
	}

	ordered := s.Order(actions, pressureIndex)

	if maxN < 1 || maxN > len(ordered) {
		maxN = len(ordered)
	}

	var fraction float64
	switch {
	case pressureIndex < lightLoadIndex:
		fraction = 0.5
	case pressureIndex < fullLoadIndex:
		fraction = 2.0 / 3.0
	default:
		fraction = 1.0
	}

	count := int(math.Ceil(fraction * float64(maxN)))
	if count < 1 {
		count = 1
	}
	if count > maxN {
		count = maxN
	}

	if s.logger != nil {
		s.logger.Debug("动作子集已选定",
			zap.Float64("pressure_index", pressureIndex),
			zap.Int("selected", count),
			zap.Int("max_n", maxN),
			zap.Int("total", len(ordered)))
	}
	return ordered[:count]
}

// Report 按冲击分级归类动作名，仅用于状态报告
func (s *ActionScheduler) Report(actions []types.MitigationAction) map[types.ImpactClass][]string {
	report := make(map[types.ImpactClass][]string)
	for _, action := range actions {
		class := types.ClassifyImpact(s.effectiveWeight(action))
		report[class] = append(report[class], action.Name)
	}
	return report
}
