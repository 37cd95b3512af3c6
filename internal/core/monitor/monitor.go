// Package monitor 内存压力监控组件
//
// PressureMonitor 负责周期性采样内存使用率，在滑动窗口上
// 计算压力指数、趋势与升级信号，并通过回调和事件总线
// 通知阈值穿越。它只做观测：除了触发回调外没有任何副作用。
package monitor

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	monitorconfig "github.com/visionclip/memfuse/internal/config/monitor"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// 事件总线主题
const (
	// TopicThresholdCrossed 阈值向上穿越时发布，参数为 (threshold float64, sample types.PressureSample)
	TopicThresholdCrossed = "monitor:threshold_crossed"

	// TopicEscalation 检测到压力升级时发布，参数为 (slope float64)
	TopicEscalation = "monitor:escalation"
)

// ThresholdCallback 阈值穿越回调
type ThresholdCallback func(threshold float64, sample types.PressureSample)

// EscalationCallback 压力升级回调
type EscalationCallback func(slope float64)

type thresholdWatch struct {
	threshold float64
	callback  ThresholdCallback
}

// PressureMonitor 内存压力监控器
type PressureMonitor struct {
	opts    *monitorconfig.MonitorOptions
	sampler governor.Sampler
	clock   clock.Clock
	bus     EventBus.Bus
	logger  *zap.Logger

	mu          sync.Mutex
	history     []types.PressureSample
	watches     []thresholdWatch
	escalations []EscalationCallback
}

// NewPressureMonitor 创建压力监控器
// clk 为 nil 时使用真实时钟
func NewPressureMonitor(opts *monitorconfig.MonitorOptions, sampler governor.Sampler, clk clock.Clock, bus EventBus.Bus, logger *zap.Logger) *PressureMonitor {
	if clk == nil {
		clk = clock.New()
	}
	return &PressureMonitor{
		opts:    opts,
		sampler: sampler,
		clock:   clk,
		bus:     bus,
		logger:  logger,
		history: make([]types.PressureSample, 0, opts.WindowSize),
	}
}

// Start 启动采样循环
//
// 在独立的 goroutine 中运行，当 ctx.Done() 时自动停止。
func (m *PressureMonitor) Start(ctx context.Context) {
	ticker := m.clock.Ticker(m.opts.SampleInterval)
	defer ticker.Stop()

	if m.logger != nil {
		m.logger.Info("压力监控启动",
			zap.Duration("sample_interval", m.opts.SampleInterval),
			zap.Int("window_size", m.opts.WindowSize))
	}

	for {
		select {
		case <-ctx.Done():
			if m.logger != nil {
				m.logger.Info("压力监控停止")
			}
			return
		case <-ticker.C:
			if err := m.SampleOnce(); err != nil && m.logger != nil {
				m.logger.Warn("内存采样失败", zap.Error(err))
			}
		}
	}
}

// SampleOnce 执行一次采样（公开方法，供启动时立即采样或测试调用）
func (m *PressureMonitor) SampleOnce() error {
	usage, err := m.sampler.Sample()
	if err != nil {
		return err
	}

	sample := types.PressureSample{
		Timestamp:    m.clock.Now(),
		UsagePercent: usage,
	}

	m.mu.Lock()

	var prev *types.PressureSample
	if len(m.history) > 0 {
		last := m.history[len(m.history)-1]
		prev = &last
	}

	m.history = append(m.history, sample)
	// 保持窗口大小
	if len(m.history) > m.opts.WindowSize {
		m.history = m.history[len(m.history)-m.opts.WindowSize:]
	}

	// 在锁内计算好要触发的回调，锁外执行，
	// 避免回调反向调用监控器时死锁
	var crossed []thresholdWatch
	if prev != nil {
		for _, w := range m.watches {
			if prev.UsagePercent < w.threshold && sample.UsagePercent >= w.threshold {
				crossed = append(crossed, w)
			}
		}
	}

	escalating, slope := m.isEscalatingLocked()
	var escalationCbs []EscalationCallback
	if escalating {
		escalationCbs = append(escalationCbs, m.escalations...)
	}

	index := m.indexLocked()
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("pressure_sample",
			zap.Float64("usage_percent", sample.UsagePercent),
			zap.Float64("pressure_index", index))
	}

	for _, w := range crossed {
		if m.logger != nil {
			m.logger.Warn("压力阈值穿越",
				zap.Float64("threshold", w.threshold),
				zap.Float64("usage_percent", sample.UsagePercent))
		}
		w.callback(w.threshold, sample)
		if m.bus != nil {
			m.bus.Publish(TopicThresholdCrossed, w.threshold, sample)
		}
	}

	for _, cb := range escalationCbs {
		cb(slope)
	}
	if escalating && m.bus != nil {
		m.bus.Publish(TopicEscalation, slope)
	}

	return nil
}

// Index 返回当前压力指数（0-100）
//
// 指数由即时值和最近均值加权合成，超过放大阈值的部分
// 按放大系数上调，让高压区间的响应更敏锐。
func (m *PressureMonitor) Index() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexLocked()
}

func (m *PressureMonitor) indexLocked() float64 {
	if len(m.history) == 0 {
		return 0
	}

	current := m.history[len(m.history)-1].UsagePercent

	span := m.opts.RecentSpan
	if span > len(m.history) {
		span = len(m.history)
	}
	sum := 0.0
	for _, s := range m.history[len(m.history)-span:] {
		sum += s.UsagePercent
	}
	avg := sum / float64(span)

	idx := m.opts.RecentWeight*current + (1-m.opts.RecentWeight)*avg

	if idx > m.opts.AmplifyAbove {
		idx = m.opts.AmplifyAbove + (idx-m.opts.AmplifyAbove)*m.opts.AmplifyFactor
	}

	if idx < 0 {
		idx = 0
	}
	if idx > 100 {
		idx = 100
	}
	return idx
}

// Trend 对最近 window 个采样做最小二乘拟合，返回斜率与拟合优度
// window <= 0 时使用默认窗口（30）
func (m *PressureMonitor) Trend(window int) types.TrendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trendLocked(window)
}

func (m *PressureMonitor) trendLocked(window int) types.TrendResult {
	if window <= 0 {
		window = defaultTrendWindow
	}

	samples := m.history
	if len(samples) > window {
		samples = samples[len(samples)-window:]
	}

	return fitTrend(samples)
}

// IsEscalating 判断压力是否正在升级
//
// 对最近5个采样做线性拟合，斜率外推后的增量超过配置阈值
// 即视为升级，与绝对压力高低无关。
func (m *PressureMonitor) IsEscalating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	escalating, _ := m.isEscalatingLocked()
	return escalating
}

func (m *PressureMonitor) isEscalatingLocked() (bool, float64) {
	trend := m.trendLocked(escalationWindow)
	projected := trend.Slope * float64(escalationWindow)
	return projected > m.opts.EscalationSlope, trend.Slope
}

// Predict 预测 lookahead 个采样点之后的压力指数
//
// 拟合优度低于下限时趋势不可信，原样返回当前指数。
// lookahead <= 0 时使用配置的默认预测步数。
func (m *PressureMonitor) Predict(lookahead int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lookahead <= 0 {
		lookahead = m.opts.PredictHorizon
	}

	index := m.indexLocked()

	trend := m.trendLocked(0)
	if trend.RSquared < m.opts.RSquaredFloor {
		return index
	}

	predicted := index + trend.Slope*float64(lookahead)
	if predicted < 0 {
		predicted = 0
	}
	if predicted > 100 {
		predicted = 100
	}
	return predicted
}

// History 返回采样历史的副本（按时间顺序）
func (m *PressureMonitor) History() []types.PressureSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.PressureSample, len(m.history))
	copy(result, m.history)
	return result
}

// LatestUsage 返回最新的完整内存快照
func (m *PressureMonitor) LatestUsage() types.MemoryUsage {
	usage, err := m.sampler.Usage()
	if err != nil && m.logger != nil {
		m.logger.Warn("读取内存快照失败", zap.Error(err))
	}
	return usage
}

// OnThreshold 注册阈值穿越回调
// 只在向上穿越时触发：上一个采样低于阈值且当前采样达到阈值
func (m *PressureMonitor) OnThreshold(threshold float64, cb ThresholdCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = append(m.watches, thresholdWatch{threshold: threshold, callback: cb})
}

// OnEscalation 注册压力升级回调
// 每次采样检测到升级都会触发
func (m *PressureMonitor) OnEscalation(cb EscalationCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations = append(m.escalations, cb)
}

const (
	// defaultTrendWindow 趋势拟合默认窗口
	defaultTrendWindow = 30

	// escalationWindow 升级判定窗口
	escalationWindow = 5
)

// fitTrend 对采样序列做最小二乘线性拟合
// x 取采样点序号，斜率的量纲是"百分点/采样点"
func fitTrend(samples []types.PressureSample) types.TrendResult {
	n := len(samples)
	if n < 2 {
		return types.TrendResult{}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, s := range samples {
		x := float64(i)
		y := s.UsagePercent
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return types.TrendResult{}
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	// R² = 1 - SSres/SStot；序列完全平坦时视为完美拟合
	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, s := range samples {
		predicted := intercept + slope*float64(i)
		ssRes += (s.UsagePercent - predicted) * (s.UsagePercent - predicted)
		ssTot += (s.UsagePercent - meanY) * (s.UsagePercent - meanY)
	}

	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}
	if rSquared < 0 {
		rSquared = 0
	}

	return types.TrendResult{Slope: slope, RSquared: rSquared}
}
