// Package recovery 熔断后的资源恢复协调
//
// 协调器在熔断动作释放资源前捕获快照并落盘，压力回落后按
// 注册的逆序重建资源。回滚过程带节奏控制：压力再度抬头时
// 暂停重建，等压力明显回落后继续，避免恢复本身把系统再次
// 推回熔断区。
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// 回滚节奏参数
const (
	// pauseAbovePercent 压力超过该值时暂停回滚
	pauseAbovePercent = 80

	// resumeBelowPercent 压力回落到该值以下才恢复回滚
	// 与暂停线留出5个点的滞回，防止在边界上抖动
	resumeBelowPercent = pauseAbovePercent - 5

	// pacePollInterval 暂停期间的压力轮询间隔
	pacePollInterval = 500 * time.Millisecond

	// successFloor 判定整体恢复成功所需的最低成功比例
	successFloor = 0.8

	// latestPointerFile 最近一次快照的指针文件
	latestPointerFile = "state_latest.json"
)

// SnapshotSource 资源快照来源
type SnapshotSource interface {
	SnapshotAll() []*types.ResourceSnapshot
}

// PressureFunc 当前压力指数读取函数
type PressureFunc func() float64

// RollbackResult 一次回滚的结果
type RollbackResult struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
	Success   bool     `json:"success"` // 成功比例达到下限
}

// RecoveryCoordinator 恢复协调器
type RecoveryCoordinator struct {
	source   SnapshotSource
	pressure PressureFunc
	clock    clock.Clock
	stateDir string
	auditLog *audit.FuseAudit
	logger   *zap.Logger
	forceGC  func() // 暂停期间的强制GC，测试可替换

	mu        sync.Mutex
	restorers map[types.ResourceType]governor.Restorer
	snapshot  []*types.ResourceSnapshot // 待恢复集合，回滚失败的子集保留在这里
}

// NewRecoveryCoordinator 创建恢复协调器
// clk 为 nil 时使用真实时钟；auditLog 可为 nil
func NewRecoveryCoordinator(source SnapshotSource, pressure PressureFunc, stateDir string, clk clock.Clock, auditLog *audit.FuseAudit, logger *zap.Logger) *RecoveryCoordinator {
	if clk == nil {
		clk = clock.New()
	}
	return &RecoveryCoordinator{
		source:   source,
		pressure: pressure,
		clock:    clk,
		stateDir: stateDir,
		auditLog: auditLog,
		logger:   logger,
		forceGC: func() {
			runtime.GC()
			debug.FreeOSMemory()
		},
		restorers: make(map[types.ResourceType]governor.Restorer),
	}
}

// RegisterRestorer 为资源类型注册恢复策略
func (c *RecoveryCoordinator) RegisterRestorer(resourceType types.ResourceType, restorer governor.Restorer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restorers[resourceType] = restorer
}

// CaptureSnapshot 捕获当前全部资源的快照并落盘
//
// 落盘失败不影响内存中的快照：恢复仍然可用，只是不能跨重启。
func (c *RecoveryCoordinator) CaptureSnapshot() []*types.ResourceSnapshot {
	snapshots := c.source.SnapshotAll()

	c.mu.Lock()
	c.snapshot = snapshots
	c.mu.Unlock()

	if err := c.persist(snapshots); err != nil && c.logger != nil {
		c.logger.Warn("恢复快照落盘失败", zap.Error(err))
	}

	if c.logger != nil {
		c.logger.Info("恢复快照已捕获", zap.Int("resources", len(snapshots)))
	}
	return snapshots
}

// persist 把快照写成以时间戳命名的文件并更新指针
func (c *RecoveryCoordinator) persist(snapshots []*types.ResourceSnapshot) error {
	if c.stateDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.stateDir, 0700); err != nil {
		return fmt.Errorf("创建恢复状态目录失败: %w", err)
	}

	byID := make(map[string]*types.ResourceSnapshot, len(snapshots))
	for _, snap := range snapshots {
		byID[snap.ResourceID] = snap
	}
	data, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}

	name := fmt.Sprintf("state_%d.json", c.clock.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(c.stateDir, name), data, 0600); err != nil {
		return fmt.Errorf("写入快照文件失败: %w", err)
	}

	pointer, err := json.Marshal(map[string]string{"latest": name})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.stateDir, latestPointerFile), pointer, 0600); err != nil {
		return fmt.Errorf("更新快照指针失败: %w", err)
	}
	return nil
}

// LoadLatest 读取最近一次落盘的快照，按创建时间重建顺序
// 指针或快照文件缺失时返回 (nil, nil)
func (c *RecoveryCoordinator) LoadLatest() ([]*types.ResourceSnapshot, error) {
	pointerData, err := os.ReadFile(filepath.Join(c.stateDir, latestPointerFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pointer map[string]string
	if err := json.Unmarshal(pointerData, &pointer); err != nil {
		return nil, fmt.Errorf("解析快照指针失败: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(c.stateDir, pointer["latest"]))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var byID map[string]*types.ResourceSnapshot
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, fmt.Errorf("解析快照文件失败: %w", err)
	}

	snapshots := make([]*types.ResourceSnapshot, 0, len(byID))
	for _, snap := range byID {
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Rollback 按快照的逆序重建资源
//
// 每个资源重建前检查压力：超过暂停线就等压力回落再继续。
// 失败的资源保留在待恢复集合中，成功的移出；成功比例达到
// 下限即判定整体成功。
func (c *RecoveryCoordinator) Rollback(ctx context.Context) RollbackResult {
	c.mu.Lock()
	pending := append([]*types.ResourceSnapshot(nil), c.snapshot...)
	c.mu.Unlock()

	result := RollbackResult{Total: len(pending)}
	if len(pending) == 0 {
		result.Success = true
		return result
	}

	if c.auditLog != nil {
		c.auditLog.Record(types.EventRecoveryStarted, map[string]interface{}{
			"resources": len(pending),
		})
	}

	var failed []*types.ResourceSnapshot
	for i := len(pending) - 1; i >= 0; i-- {
		snap := pending[i]

		if err := c.pace(ctx); err != nil {
			// 上下文取消：未处理的资源全部算作待恢复
			failed = append(failed, pending[:i+1]...)
			result.Failed = len(failed)
			break
		}

		if err := c.restoreOne(ctx, snap); err != nil {
			failed = append(failed, snap)
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, snap.ResourceID)
			if c.logger != nil {
				c.logger.Warn("资源重建失败",
					zap.String("resource_id", snap.ResourceID),
					zap.Error(err))
			}
			continue
		}
		result.Succeeded++
	}

	c.mu.Lock()
	c.snapshot = failed
	c.mu.Unlock()

	result.Success = float64(result.Succeeded) >= successFloor*float64(result.Total)

	if c.auditLog != nil {
		c.auditLog.Record(types.EventRecoveryCompleted, map[string]interface{}{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
			"success":   result.Success,
		})
	}
	if c.logger != nil {
		c.logger.Info("回滚完成",
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Bool("success", result.Success))
	}
	return result
}

// pace 压力超过暂停线时阻塞，直到回落到恢复线以下
//
// 等待期间每轮轮询先做一次强制GC，主动帮压力回落而不是干等。
func (c *RecoveryCoordinator) pace(ctx context.Context) error {
	if c.pressure == nil || c.pressure() <= pauseAbovePercent {
		return ctx.Err()
	}

	if c.logger != nil {
		c.logger.Info("压力过高，回滚暂停", zap.Float64("pressure", c.pressure()))
	}

	for c.pressure() > resumeBelowPercent {
		if c.forceGC != nil {
			c.forceGC()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(pacePollInterval):
		}
	}
	return nil
}

// restoreOne 重建单个资源
func (c *RecoveryCoordinator) restoreOne(ctx context.Context, snap *types.ResourceSnapshot) error {
	c.mu.Lock()
	restorer := c.restorers[snap.ResourceType]
	c.mu.Unlock()

	if restorer == nil {
		return fmt.Errorf("资源类型 %q 没有注册恢复策略", snap.ResourceType)
	}
	return restorer.Restore(ctx, snap)
}

// ClearSnapshot 清除待恢复集合与磁盘上的快照指针
// 压力回到正常水位后调用，表示没有待恢复的资源
func (c *RecoveryCoordinator) ClearSnapshot() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()

	if c.stateDir != "" {
		if err := os.Remove(filepath.Join(c.stateDir, latestPointerFile)); err != nil && !os.IsNotExist(err) && c.logger != nil {
			c.logger.Warn("移除快照指针失败", zap.Error(err))
		}
	}
}

// Pending 返回待恢复集合的副本
func (c *RecoveryCoordinator) Pending() []*types.ResourceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.ResourceSnapshot(nil), c.snapshot...)
}
