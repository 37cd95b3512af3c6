// Package fuse 熔断控制器与内置缓解动作
package fuse

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/internal/core/validator"
	logiface "github.com/visionclip/memfuse/pkg/interfaces/infrastructure/log"
	"github.com/visionclip/memfuse/pkg/types"
)

// BackgroundGate 后台任务闸门
//
// pause_background 动作合上闸门，后台工作者在每个工作单元前
// 检查 Paused，为前台推理让出内存带宽。恢复流程重新打开闸门。
type BackgroundGate struct {
	paused atomic.Bool
}

// Pause 暂停后台任务
func (g *BackgroundGate) Pause() { g.paused.Store(true) }

// Resume 恢复后台任务
func (g *BackgroundGate) Resume() { g.paused.Store(false) }

// Paused 返回当前是否暂停
func (g *BackgroundGate) Paused() bool { return g.paused.Load() }

// Handlers 内置动作处理器集合
type Handlers struct {
	params      actionsconfig.HandlerParams
	levelCtrl   logiface.LevelController
	caches      *registry.CacheManager
	registry    *registry.ResourceRegistry
	gate        *BackgroundGate
	degradation *DegradationState
	logger      *zap.Logger

	// terminate 终止自身进程，kill_process 动作的执行体
	// 默认向自身发送 SIGTERM，测试中可替换
	terminate func() error

	// listProcesses 与 kill 是 kill_largest_process 的执行体
	// 默认扫描 /proc 并发送终止信号，测试中可替换
	listProcesses func() ([]processInfo, error)
	kill          func(pid int) error
}

// NewHandlers 创建内置动作处理器集合
func NewHandlers(params actionsconfig.HandlerParams, levelCtrl logiface.LevelController, caches *registry.CacheManager, reg *registry.ResourceRegistry, gate *BackgroundGate, degradation *DegradationState, logger *zap.Logger) *Handlers {
	return &Handlers{
		params:      params,
		levelCtrl:   levelCtrl,
		caches:      caches,
		registry:    reg,
		gate:        gate,
		degradation: degradation,
		logger:      logger,
		terminate: func() error {
			return syscall.Kill(os.Getpid(), syscall.SIGTERM)
		},
		listProcesses: listSystemProcesses,
		kill:          terminateProcess,
	}
}

// RegisterAll 把全部内置处理器注册到验证器
func (h *Handlers) RegisterAll(v *validator.EffectValidator) {
	v.RegisterHandler("reduce_log_verbosity", h.ReduceLogVerbosity)
	v.RegisterHandler("clear_cache", h.ClearCache)
	v.RegisterHandler("force_gc", h.ForceGC)
	v.RegisterHandler("reduce_cache_size", h.ReduceCacheSize)
	v.RegisterHandler("pause_background", h.PauseBackground)
	v.RegisterHandler("degrade_quality", h.DegradeQuality)
	v.RegisterHandler("disable_features", h.DisableFeatures)
	v.RegisterHandler("release_resources", h.ReleaseResources)
	v.RegisterHandler("switch_to_lightweight_models", h.SwitchToLightweightModels)
	v.RegisterHandler("unload_model", h.UnloadModel)
	v.RegisterHandler("activate_survival_mode", h.ActivateSurvivalMode)
	v.RegisterHandler("kill_largest_process", h.KillLargestProcess)
	v.RegisterHandler("kill_process", h.KillProcess)
}

// ReduceLogVerbosity 把日志级别压到 error，减少日志缓冲与IO开销
func (h *Handlers) ReduceLogVerbosity(ctx context.Context) error {
	if h.levelCtrl != nil {
		h.levelCtrl.SetLevel(logiface.ErrorLevel)
	}
	return nil
}

// ClearCache 清空进程内缓存并清理过期临时文件
func (h *Handlers) ClearCache(ctx context.Context) error {
	if h.caches != nil {
		freed := h.caches.ClearAll()
		if h.logger != nil {
			h.logger.Info("进程内缓存已清空", zap.Float64("freed_mb", freed))
		}
	}
	return h.sweepTempFiles(ctx)
}

// sweepTempFiles 按模式清理超龄临时文件，单个文件的失败不中断清理
func (h *Handlers) sweepTempFiles(ctx context.Context) error {
	cutoff := time.Now().Add(-h.params.ClearCache.MaxFileAge)

	for _, dir := range h.params.ClearCache.Directories {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, pattern := range h.params.ClearCache.FilePatterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				continue
			}
			for _, path := range matches {
				info, err := os.Stat(path)
				if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
					continue
				}
				if err := os.Remove(path); err == nil && h.logger != nil {
					h.logger.Debug("临时文件已清理", zap.String("path", path))
				}
			}
		}
	}
	return nil
}

// ForceGC 强制垃圾回收，必要时把空闲页还给操作系统
func (h *Handlers) ForceGC(ctx context.Context) error {
	runs := h.params.ForceGC.RunTimes
	if runs < 1 {
		runs = 1
	}
	for i := 0; i < runs; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		runtime.GC()
	}
	if h.params.ForceGC.Aggressive {
		debug.FreeOSMemory()
	}
	return nil
}

// ReduceCacheSize 把缓存上限收缩到一半
func (h *Handlers) ReduceCacheSize(ctx context.Context) error {
	if h.caches == nil {
		return nil
	}
	freed, err := h.caches.Shrink(0.5)
	if err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("缓存上限已减半", zap.Float64("freed_mb", freed))
	}
	return nil
}

// PauseBackground 合上后台任务闸门
func (h *Handlers) PauseBackground(ctx context.Context) error {
	if h.gate != nil {
		h.gate.Pause()
	}
	return nil
}

// ReleaseResources 释放全部未固定资源
func (h *Handlers) ReleaseResources(ctx context.Context) error {
	if h.registry == nil {
		return nil
	}
	freed, released := h.registry.ReleaseUnpinned(ctx)
	if h.logger != nil {
		h.logger.Info("资源批量释放完成",
			zap.Int("released", released),
			zap.Float64("freed_mb", freed))
	}
	return nil
}

// DegradeQuality 把画质档位收紧到配置的降级档
func (h *Handlers) DegradeQuality(ctx context.Context) error {
	if h.degradation == nil {
		return nil
	}
	p := h.params.DegradeQuality
	h.degradation.DegradeQuality(p.RenderQuality, p.PreviewResolution, p.PlaybackQuality)
	if h.logger != nil {
		h.logger.Info("画质已降级",
			zap.String("render_quality", p.RenderQuality),
			zap.String("preview_resolution", p.PreviewResolution),
			zap.String("playback_quality", p.PlaybackQuality))
	}
	return nil
}

// DisableFeatures 关停非核心功能并释放其占用的资源
func (h *Handlers) DisableFeatures(ctx context.Context) error {
	p := h.params.DisableFeatures
	if h.degradation != nil {
		h.degradation.DisableFeatures(p.Features)
	}

	var freed float64
	released := 0
	if h.registry != nil {
		for _, resourceType := range p.ReleaseTypes {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f, n := h.registry.ReleaseByType(ctx, resourceType)
			freed += f
			released += n
		}
	}
	if h.logger != nil {
		h.logger.Info("非核心功能已关停",
			zap.Strings("features", p.Features),
			zap.Int("released", released),
			zap.Float64("freed_mb", freed))
	}
	return nil
}

// SwitchToLightweightModels 切到轻量模型档位并卸下全精度权重
//
// 只释放权重不动分片：宿主按轻量档位重新加载权重时，
// 分片索引还能继续复用。
func (h *Handlers) SwitchToLightweightModels(ctx context.Context) error {
	if h.degradation != nil {
		h.degradation.SwitchToLightweight()
	}
	if h.registry == nil {
		return nil
	}
	freed, released := h.registry.ReleaseByType(ctx, types.ResourceModelWeights)
	if h.logger != nil {
		h.logger.Warn("已切换到轻量模型",
			zap.Int("released", released),
			zap.Float64("freed_mb", freed))
	}
	return nil
}

// ActivateSurvivalMode 进入生存模式
//
// 组合动作：停后台、清缓存、关功能、强制GC，把进程压到
// 最小工作集，为紧急级别的后续动作争取余量。
func (h *Handlers) ActivateSurvivalMode(ctx context.Context) error {
	if h.degradation != nil {
		h.degradation.EnterSurvivalMode()
	}
	if h.gate != nil {
		h.gate.Pause()
	}
	if h.caches != nil {
		freed := h.caches.ClearAll()
		if h.logger != nil {
			h.logger.Warn("生存模式：缓存已清空", zap.Float64("freed_mb", freed))
		}
	}
	if err := h.DisableFeatures(ctx); err != nil {
		return err
	}
	return h.ForceGC(ctx)
}

// KillLargestProcess 终止内存占用最大的外部进程
//
// 候选限定为内存占比超过配置阈值的进程，排除名单与自身
// 永不入选。没有候选时不报错，交给验证器按释放量判失败。
func (h *Handlers) KillLargestProcess(ctx context.Context) error {
	processes, err := h.listProcesses()
	if err != nil {
		return err
	}

	p := h.params.KillLargestProcess
	self := os.Getpid()

	var candidates []processInfo
	for _, proc := range processes {
		if proc.PID == self || proc.MemPercent < p.MaxMemoryPercent {
			continue
		}
		if processExcluded(proc.Name, p.ExcludeProcesses) {
			continue
		}
		candidates = append(candidates, proc)
	}
	if len(candidates) == 0 {
		if h.logger != nil {
			h.logger.Warn("没有可终止的外部进程",
				zap.Float64("max_memory_percent", p.MaxMemoryPercent))
		}
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].MemPercent > candidates[j].MemPercent
	})
	target := candidates[0]

	if h.logger != nil {
		h.logger.Error("即将终止内存占用最大的外部进程",
			zap.Int("pid", target.PID),
			zap.String("name", target.Name),
			zap.Float64("rss_mb", target.RSSMB),
			zap.Float64("mem_percent", target.MemPercent))
	}
	return h.kill(target.PID)
}

// processExcluded 进程名命中排除名单
func processExcluded(name string, excludes []string) bool {
	for _, exclude := range excludes {
		if exclude != "" && strings.Contains(name, exclude) {
			return true
		}
	}
	return false
}

// UnloadModel 卸载模型分片与未固定的模型权重
func (h *Handlers) UnloadModel(ctx context.Context) error {
	if h.registry == nil {
		return nil
	}
	shardFreed, shards := h.registry.ReleaseByType(ctx, types.ResourceModelShard)
	weightFreed, weights := h.registry.ReleaseByType(ctx, types.ResourceModelWeights)
	if h.logger != nil {
		h.logger.Warn("模型已卸载",
			zap.Int("shards", shards),
			zap.Int("weights", weights),
			zap.Float64("freed_mb", shardFreed+weightFreed))
	}
	return nil
}

// KillProcess 终极动作：结束自身进程，交给进程守护重启
func (h *Handlers) KillProcess(ctx context.Context) error {
	if h.logger != nil {
		h.logger.Error("内存压力无法缓解，进程即将自我终止")
	}
	return h.terminate()
}
