package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"
)

// 缓存管理默认参数
const (
	// defaultCacheLimitMB 单个命名缓存的内存硬上限
	defaultCacheLimitMB = 256

	// defaultCacheTTL 缓存条目的存活时间
	defaultCacheTTL = 10 * time.Minute

	// minCacheLimitMB 收缩后的下限，再小缓存就失去意义
	minCacheLimitMB = 16
)

// CacheManager 命名内存缓存管理器
//
// 渲染帧、音频波形等中间产物的进程内缓存都挂在这里，
// clear_cache 与 reduce_cache_size 两个缓解动作作用于它。
type CacheManager struct {
	mu      sync.Mutex
	caches  map[string]*bigcache.BigCache
	limitMB int
	logger  *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(limitMB int, logger *zap.Logger) *CacheManager {
	if limitMB <= 0 {
		limitMB = defaultCacheLimitMB
	}
	return &CacheManager{
		caches:  make(map[string]*bigcache.BigCache),
		limitMB: limitMB,
		logger:  logger,
	}
}

// Cache 按名称获取缓存，不存在时懒创建
func (m *CacheManager) Cache(name string) (*bigcache.BigCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheLocked(name, m.limitMB)
}

// cacheLocked 创建或返回命名缓存，调用方必须持有锁
func (m *CacheManager) cacheLocked(name string, limitMB int) (*bigcache.BigCache, error) {
	if cache, ok := m.caches[name]; ok {
		return cache, nil
	}

	config := bigcache.DefaultConfig(defaultCacheTTL)
	config.HardMaxCacheSize = limitMB
	config.Verbose = false

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("创建缓存 %q 失败: %w", name, err)
	}
	m.caches[name] = cache
	return cache, nil
}

// ClearAll 清空全部命名缓存，返回估算释放量（MB）
func (m *CacheManager) ClearAll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var freedBytes int
	for name, cache := range m.caches {
		stats := cache.Stats()
		freedBytes += cache.Capacity()
		if err := cache.Reset(); err != nil && m.logger != nil {
			m.logger.Warn("清空缓存失败",
				zap.String("cache", name),
				zap.Error(err))
			continue
		}
		if m.logger != nil {
			m.logger.Info("缓存已清空",
				zap.String("cache", name),
				zap.Int64("hits", stats.Hits))
		}
	}
	return float64(freedBytes) / (1 << 20)
}

// Shrink 把缓存上限收缩为当前的 factor 倍并重建缓存
// 重建会丢弃现有条目，这正是 reduce_cache_size 动作要的效果
func (m *CacheManager) Shrink(factor float64) (float64, error) {
	if factor <= 0 || factor >= 1 {
		return 0, fmt.Errorf("无效的收缩系数: %v", factor)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	newLimit := int(float64(m.limitMB) * factor)
	if newLimit < minCacheLimitMB {
		newLimit = minCacheLimitMB
	}
	if newLimit >= m.limitMB {
		return 0, nil
	}

	var freedBytes int
	names := make([]string, 0, len(m.caches))
	for name, cache := range m.caches {
		freedBytes += cache.Capacity()
		if err := cache.Close(); err != nil && m.logger != nil {
			m.logger.Warn("关闭缓存失败", zap.String("cache", name), zap.Error(err))
		}
		names = append(names, name)
	}
	m.caches = make(map[string]*bigcache.BigCache, len(names))
	m.limitMB = newLimit

	for _, name := range names {
		if _, err := m.cacheLocked(name, newLimit); err != nil {
			return float64(freedBytes) / (1 << 20), err
		}
	}

	if m.logger != nil {
		m.logger.Info("缓存上限已收缩", zap.Int("new_limit_mb", newLimit))
	}
	return float64(freedBytes) / (1 << 20), nil
}

// LimitMB 返回当前单缓存上限
func (m *CacheManager) LimitMB() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limitMB
}

// Close 关闭全部缓存
func (m *CacheManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, cache := range m.caches {
		if err := cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.caches = make(map[string]*bigcache.BigCache)
	return firstErr
}
