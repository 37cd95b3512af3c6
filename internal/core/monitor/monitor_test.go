package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	monitorconfig "github.com/visionclip/memfuse/internal/config/monitor"
	"github.com/visionclip/memfuse/pkg/types"
)

// newTestMonitor 构造使用脚本采样器的监控器
func newTestMonitor(series []float64) *PressureMonitor {
	opts := monitorconfig.New(nil).GetOptions()
	return NewPressureMonitor(opts, NewScriptedSampler(series), nil, EventBus.New(), zap.NewNop())
}

// feed 依次执行 n 次采样
func feed(t *testing.T, m *PressureMonitor, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, m.SampleOnce())
	}
}

// TestStartPacedByClock 测试采样循环按注入时钟推进
func TestStartPacedByClock(t *testing.T) {
	opts := monitorconfig.New(nil).GetOptions()
	mock := clock.NewMock()
	m := NewPressureMonitor(opts, NewScriptedSampler([]float64{50, 60, 70}), mock, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	deadline := time.After(time.Second)
	for len(m.History()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("时钟推进后采样不足: %d", len(m.History()))
		default:
			mock.Add(opts.SampleInterval)
			time.Sleep(time.Millisecond)
		}
	}

	history := m.History()
	assert.Equal(t, 50.0, history[0].UsagePercent)
	assert.Equal(t, 70.0, history[2].UsagePercent)
}

// TestIndexWeighting 测试压力指数的加权合成
func TestIndexWeighting(t *testing.T) {
	t.Run("空历史返回0", func(t *testing.T) {
		m := newTestMonitor([]float64{50})
		assert.Equal(t, 0.0, m.Index())
	})

	t.Run("单个采样", func(t *testing.T) {
		m := newTestMonitor([]float64{50})
		feed(t, m, 1)
		// current=50, avg=50 → 0.4*50+0.6*50 = 50
		assert.InDelta(t, 50.0, m.Index(), 0.001)
	})

	t.Run("即时值占四成权重", func(t *testing.T) {
		m := newTestMonitor([]float64{40, 40, 40, 40, 60})
		feed(t, m, 5)
		// current=60, avg(last5)=44 → 0.4*60+0.6*44 = 50.4
		assert.InDelta(t, 50.4, m.Index(), 0.001)
	})

	t.Run("高压区间放大", func(t *testing.T) {
		m := newTestMonitor([]float64{85, 85, 85, 85, 85})
		feed(t, m, 5)
		// idx=85 → 80 + 5*1.5 = 87.5
		assert.InDelta(t, 87.5, m.Index(), 0.001)
	})

	t.Run("放大后不超过100", func(t *testing.T) {
		m := newTestMonitor([]float64{98, 98, 98, 98, 98})
		feed(t, m, 5)
		// idx=98 → 80 + 18*1.5 = 107 → 100
		assert.Equal(t, 100.0, m.Index())
	})
}

// TestIndexMonotonicWhenRising 测试持续上升序列下指数单调不减
func TestIndexMonotonicWhenRising(t *testing.T) {
	series := []float64{50, 55, 61, 68, 76, 85, 95}
	m := newTestMonitor(series)

	prev := -1.0
	for range series {
		require.NoError(t, m.SampleOnce())
		idx := m.Index()
		assert.GreaterOrEqual(t, idx, prev, "持续上升时压力指数不应回落")
		prev = idx
	}
}

// TestTrend 测试线性趋势拟合
func TestTrend(t *testing.T) {
	t.Run("完美线性序列", func(t *testing.T) {
		m := newTestMonitor([]float64{10, 20, 30, 40, 50})
		feed(t, m, 5)
		trend := m.Trend(0)
		assert.InDelta(t, 10.0, trend.Slope, 0.001)
		assert.InDelta(t, 1.0, trend.RSquared, 0.001)
	})

	t.Run("平坦序列斜率为0", func(t *testing.T) {
		m := newTestMonitor([]float64{42, 42, 42, 42})
		feed(t, m, 4)
		trend := m.Trend(0)
		assert.InDelta(t, 0.0, trend.Slope, 0.001)
		assert.InDelta(t, 1.0, trend.RSquared, 0.001)
	})

	t.Run("采样不足返回零值", func(t *testing.T) {
		m := newTestMonitor([]float64{42})
		feed(t, m, 1)
		trend := m.Trend(0)
		assert.Zero(t, trend.Slope)
		assert.Zero(t, trend.RSquared)
	})
}

// TestIsEscalating 测试升级判定
func TestIsEscalating(t *testing.T) {
	t.Run("快速增长判定为升级", func(t *testing.T) {
		// 每个采样点+5，外推5点=25 > 5
		m := newTestMonitor([]float64{50, 55, 60, 65, 70})
		feed(t, m, 5)
		assert.True(t, m.IsEscalating())
	})

	t.Run("缓慢增长不算升级", func(t *testing.T) {
		// 每个采样点+0.5，外推5点=2.5 < 5
		m := newTestMonitor([]float64{50, 50.5, 51, 51.5, 52})
		feed(t, m, 5)
		assert.False(t, m.IsEscalating())
	})

	t.Run("下降不算升级", func(t *testing.T) {
		m := newTestMonitor([]float64{70, 65, 60, 55, 50})
		feed(t, m, 5)
		assert.False(t, m.IsEscalating())
	})
}

// TestPredict 测试压力预测
func TestPredict(t *testing.T) {
	t.Run("趋势可信时外推", func(t *testing.T) {
		m := newTestMonitor([]float64{40, 45, 50, 55, 60})
		feed(t, m, 5)
		// 斜率5，R²=1，预测5点后
		predicted := m.Predict(5)
		assert.Greater(t, predicted, m.Index())
	})

	t.Run("趋势噪声大时返回当前指数", func(t *testing.T) {
		m := newTestMonitor([]float64{50, 80, 30, 75, 45, 62, 38})
		feed(t, m, 7)
		trend := m.Trend(0)
		if trend.RSquared < 0.5 {
			assert.Equal(t, m.Index(), m.Predict(5))
		}
	})

	t.Run("预测结果不超过100", func(t *testing.T) {
		m := newTestMonitor([]float64{60, 70, 80, 90, 95})
		feed(t, m, 5)
		assert.LessOrEqual(t, m.Predict(20), 100.0)
	})
}

// TestThresholdCallback 测试阈值穿越回调
func TestThresholdCallback(t *testing.T) {
	t.Run("只在向上穿越时触发", func(t *testing.T) {
		m := newTestMonitor([]float64{70, 80, 85, 78, 82})

		var fired []float64
		m.OnThreshold(75, func(threshold float64, sample types.PressureSample) {
			fired = append(fired, sample.UsagePercent)
		})

		feed(t, m, 5)

		// 70→80 穿越一次；85、78 不触发；78→82 再穿越一次
		require.Len(t, fired, 2)
		assert.Equal(t, 80.0, fired[0])
		assert.Equal(t, 82.0, fired[1])
	})

	t.Run("首个采样不触发", func(t *testing.T) {
		m := newTestMonitor([]float64{90})

		count := 0
		m.OnThreshold(75, func(float64, types.PressureSample) { count++ })

		feed(t, m, 1)
		assert.Zero(t, count, "没有前序采样时无法构成穿越")
	})
}

// TestEscalationCallback 测试升级回调
func TestEscalationCallback(t *testing.T) {
	m := newTestMonitor([]float64{50, 56, 62, 68, 74, 80})

	count := 0
	m.OnEscalation(func(slope float64) {
		count++
		assert.Greater(t, slope, 1.0)
	})

	feed(t, m, 6)
	assert.Greater(t, count, 0, "持续快速增长应触发升级回调")
}

// TestWindowEviction 测试滑动窗口淘汰
func TestWindowEviction(t *testing.T) {
	opts := monitorconfig.New(nil).GetOptions()
	opts.WindowSize = 10

	series := make([]float64, 25)
	for i := range series {
		series[i] = float64(i)
	}
	m := NewPressureMonitor(opts, NewScriptedSampler(series), nil, nil, zap.NewNop())

	feed(t, m, 25)

	history := m.History()
	require.Len(t, history, 10, "历史长度不应超过窗口容量")
	assert.Equal(t, 24.0, history[9].UsagePercent, "保留的应是最新采样")
	assert.Equal(t, 15.0, history[0].UsagePercent)
}

// TestSimulatorPatterns 测试压力模拟器的模式输出
func TestSimulatorPatterns(t *testing.T) {
	t.Run("线性增长", func(t *testing.T) {
		sim := NewPressureSimulator(PatternLinearGrowth, 50, 5)
		prev := -1.0
		for i := 0; i < 8; i++ {
			v, err := sim.Sample()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, prev)
			prev = v
		}
	})

	t.Run("峰值模式周期性出现", func(t *testing.T) {
		sim := NewPressureSimulator(PatternSpike, 50, 0)
		var max float64
		for i := 0; i < 10; i++ {
			v, _ := sim.Sample()
			if v > max {
				max = v
			}
		}
		assert.Greater(t, max, 80.0, "10个采样内应出现一次峰值")
	})
}
