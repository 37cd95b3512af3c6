package storage

import (
	configtypes "github.com/visionclip/memfuse/pkg/types"
)

// StorageOptions 存储配置选项
// 覆盖审计事件存储与恢复状态快照两类持久化
type StorageOptions struct {
	AuditBackend     string `json:"audit_backend"`      // memory | file | badger
	AuditCapacity    int    `json:"audit_capacity"`     // 内存后端的环形容量
	AuditPath        string `json:"audit_path"`         // 文件/badger 后端的存储路径
	RecoveryStateDir string `json:"recovery_state_dir"` // 恢复状态快照目录
}

// Config 存储配置实现
type Config struct {
	options *StorageOptions
}

// New 创建存储配置实现
func New(userConfig interface{}) *Config {
	defaultOptions := createDefaultStorageOptions()

	if userConfig != nil {
		applyUserStorageConfig(defaultOptions, userConfig)
	}

	return &Config{
		options: defaultOptions,
	}
}

// createDefaultStorageOptions 创建默认存储配置
func createDefaultStorageOptions() *StorageOptions {
	return &StorageOptions{
		AuditBackend:     defaultAuditBackend,
		AuditCapacity:    defaultAuditCapacity,
		AuditPath:        defaultAuditPath,
		RecoveryStateDir: defaultRecoveryStateDir,
	}
}

// applyUserStorageConfig 应用用户存储配置覆盖默认值
func applyUserStorageConfig(options *StorageOptions, userConfig interface{}) {
	storageConfig, ok := userConfig.(*configtypes.UserStorageConfig)
	if !ok || storageConfig == nil {
		return
	}

	if storageConfig.AuditBackend != nil && validBackends[*storageConfig.AuditBackend] {
		options.AuditBackend = *storageConfig.AuditBackend
	}
	if storageConfig.AuditCapacity != nil && *storageConfig.AuditCapacity > 0 {
		options.AuditCapacity = *storageConfig.AuditCapacity
	}
	if storageConfig.AuditPath != nil && *storageConfig.AuditPath != "" {
		options.AuditPath = *storageConfig.AuditPath
	}
	if storageConfig.RecoveryStateDir != nil && *storageConfig.RecoveryStateDir != "" {
		options.RecoveryStateDir = *storageConfig.RecoveryStateDir
	}
}

// GetOptions 获取完整的存储配置选项
func (c *Config) GetOptions() *StorageOptions {
	return c.options
}
