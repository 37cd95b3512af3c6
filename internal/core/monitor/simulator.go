package monitor

import (
	"math"
	"math/rand"
	"sync"

	"github.com/visionclip/memfuse/pkg/types"
)

// SimulationPattern 压力模拟模式
type SimulationPattern string

const (
	// PatternSteady 在基线附近小幅波动
	PatternSteady SimulationPattern = "steady"

	// PatternLinearGrowth 按固定步长持续增长
	PatternLinearGrowth SimulationPattern = "linear_growth"

	// PatternSpike 周期性瞬时峰值
	PatternSpike SimulationPattern = "spike"

	// PatternSawtooth 锯齿：增长到上限后跌回基线
	PatternSawtooth SimulationPattern = "sawtooth"
)

// PressureSimulator 模式化的压力模拟器
//
// 实现采样器接口，用于在没有真实负载的环境里验证
// 熔断链路：监控、调度、恢复都可以在模拟压力下联调。
type PressureSimulator struct {
	mu      sync.Mutex
	pattern SimulationPattern
	base    float64
	step    float64
	ceiling float64
	tick    int
	rng     *rand.Rand
}

// NewPressureSimulator 创建压力模拟器
// base 是基线使用率，step 是每次采样的变化步长
func NewPressureSimulator(pattern SimulationPattern, base, step float64) *PressureSimulator {
	return &PressureSimulator{
		pattern: pattern,
		base:    base,
		step:    step,
		ceiling: 98,
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Sample 返回下一个模拟使用率
func (s *PressureSimulator) Sample() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value float64
	switch s.pattern {
	case PatternLinearGrowth:
		value = s.base + s.step*float64(s.tick)
		if value > s.ceiling {
			value = s.ceiling
		}
	case PatternSpike:
		value = s.base
		// 每10个采样出现一次峰值
		if s.tick%10 == 9 {
			value = s.base + 35
		}
	case PatternSawtooth:
		span := int((s.ceiling - s.base) / s.step)
		if span < 1 {
			span = 1
		}
		value = s.base + s.step*float64(s.tick%span)
	default: // PatternSteady
		value = s.base + (s.rng.Float64()-0.5)*s.step
	}

	s.tick++

	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, nil
}

// Usage 返回合成的内存快照
func (s *PressureSimulator) Usage() (types.MemoryUsage, error) {
	used, _ := s.Sample()
	const simulatedTotalMB = 8192
	return types.MemoryUsage{
		TotalMB:     simulatedTotalMB,
		UsedPercent: used,
		ProcessRSS:  simulatedTotalMB * used / 100 * 0.5,
	}, nil
}

// ScriptedSampler 按脚本回放固定序列的采样器
// 序列耗尽后停在最后一个值
type ScriptedSampler struct {
	mu     sync.Mutex
	series []float64
	pos    int
}

// NewScriptedSampler 创建脚本采样器
func NewScriptedSampler(series []float64) *ScriptedSampler {
	return &ScriptedSampler{series: append([]float64(nil), series...)}
}

// Sample 返回序列中的下一个值
func (s *ScriptedSampler) Sample() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.series) == 0 {
		return 0, nil
	}
	value := s.series[s.pos]
	if s.pos < len(s.series)-1 {
		s.pos++
	}
	return value, nil
}

// Usage 返回合成的内存快照
func (s *ScriptedSampler) Usage() (types.MemoryUsage, error) {
	s.mu.Lock()
	var current float64
	if len(s.series) > 0 {
		idx := s.pos
		if idx > 0 {
			idx--
		}
		current = s.series[idx]
	}
	s.mu.Unlock()

	const simulatedTotalMB = 8192
	return types.MemoryUsage{
		TotalMB:     simulatedTotalMB,
		UsedPercent: current,
		ProcessRSS:  math.Round(simulatedTotalMB * current / 100 * 0.5),
	}, nil
}
