package validator

import (
	"context"
	"sync"
	"time"

	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// IntervalRecorder 固定间隔的内存走势记录器
// 验证器在动作执行窗口内用它观察内存的瞬时变化
type IntervalRecorder struct {
	sampler governor.Sampler
}

var _ governor.MemoryRecorder = (*IntervalRecorder)(nil)

// NewIntervalRecorder 创建记录器
func NewIntervalRecorder(sampler governor.Sampler) *IntervalRecorder {
	return &IntervalRecorder{sampler: sampler}
}

// Record 后台按 interval 采样直到 ctx 结束，返回读取函数
// 读取函数返回采样序列的副本，可在记录进行中调用
func (r *IntervalRecorder) Record(ctx context.Context, interval time.Duration) func() []types.PressureSample {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	var mu sync.Mutex
	var samples []types.PressureSample

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				value, err := r.sampler.Sample()
				if err != nil {
					continue
				}
				mu.Lock()
				samples = append(samples, types.PressureSample{
					Timestamp:    time.Now(),
					UsagePercent: value,
				})
				mu.Unlock()
			}
		}
	}()

	return func() []types.PressureSample {
		mu.Lock()
		defer mu.Unlock()
		return append([]types.PressureSample(nil), samples...)
	}
}
