package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionclip/memfuse/pkg/types"
)

// TestGetEnvironment 测试 GetEnvironment() 方法
func TestGetEnvironment(t *testing.T) {
	t.Run("显式配置 dev", func(t *testing.T) {
		cfg := &types.AppConfig{
			Environment: types.StringPtr("dev"),
		}
		provider := NewProvider(cfg)
		assert.Equal(t, "dev", provider.GetEnvironment())
	})

	t.Run("显式配置 test", func(t *testing.T) {
		cfg := &types.AppConfig{
			Environment: types.StringPtr("test"),
		}
		provider := NewProvider(cfg)
		assert.Equal(t, "test", provider.GetEnvironment())
	})

	t.Run("未配置时默认为 prod（安全优先）", func(t *testing.T) {
		provider := NewProvider(&types.AppConfig{})
		assert.Equal(t, "prod", provider.GetEnvironment(), "未配置时应默认为 prod（安全优先）")
	})

	t.Run("无效值默认为 prod", func(t *testing.T) {
		cfg := &types.AppConfig{
			Environment: types.StringPtr("staging"),
		}
		provider := NewProvider(cfg)
		assert.Equal(t, "prod", provider.GetEnvironment(), "无效值时应默认为 prod（安全优先）")
	})
}

// TestProviderDefaults 测试未提供用户配置时各区的默认值
func TestProviderDefaults(t *testing.T) {
	provider := NewProvider(nil)

	t.Run("熔断默认阈值递增", func(t *testing.T) {
		opts := provider.GetFuse()
		require.NotNil(t, opts)
		assert.Equal(t, 75.0, opts.Thresholds[types.FuseLevelWarning])
		assert.Equal(t, 85.0, opts.Thresholds[types.FuseLevelCritical])
		assert.Equal(t, 95.0, opts.Thresholds[types.FuseLevelEmergency])
		assert.Less(t, opts.RecoveryThreshold, opts.Thresholds[types.FuseLevelWarning])
	})

	t.Run("监控默认窗口", func(t *testing.T) {
		opts := provider.GetMonitor()
		require.NotNil(t, opts)
		assert.Equal(t, 60, opts.WindowSize)
	})

	t.Run("存储默认内存后端", func(t *testing.T) {
		opts := provider.GetStorage()
		require.NotNil(t, opts)
		assert.Equal(t, "memory", opts.AuditBackend)
		assert.Equal(t, 1000, opts.AuditCapacity)
	})

	t.Run("API默认本机监听", func(t *testing.T) {
		opts := provider.GetAPI()
		require.NotNil(t, opts)
		assert.True(t, opts.Enabled)
		assert.Equal(t, "127.0.0.1:8941", opts.Listen)
	})
}

// TestProviderOverrides 测试用户配置覆盖默认值
func TestProviderOverrides(t *testing.T) {
	t.Run("用户阈值覆盖默认值", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				Thresholds: map[string]float64{
					"warning": 60,
				},
				StepRecovery: types.BoolPtr(false),
			},
		}
		provider := NewProvider(cfg)
		opts := provider.GetFuse()
		assert.Equal(t, 60.0, opts.Thresholds[types.FuseLevelWarning])
		assert.Equal(t, 85.0, opts.Thresholds[types.FuseLevelCritical], "未覆盖的级别保留默认值")
		assert.False(t, opts.StepRecovery)
	})

	t.Run("存储相对路径挂到数据目录下", func(t *testing.T) {
		cfg := &types.AppConfig{
			DataDir: types.StringPtr("/var/lib/memfuse"),
		}
		provider := NewProvider(cfg)
		opts := provider.GetStorage()
		assert.Equal(t, filepath.Join("/var/lib/memfuse", "data/audit"), opts.AuditPath)
		assert.Equal(t, filepath.Join("/var/lib/memfuse", "data/recovery"), opts.RecoveryStateDir)
	})

	t.Run("存储绝对路径不做改写", func(t *testing.T) {
		cfg := &types.AppConfig{
			DataDir: types.StringPtr("/var/lib/memfuse"),
			Storage: &types.UserStorageConfig{
				AuditPath: types.StringPtr("/mnt/audit"),
			},
		}
		provider := NewProvider(cfg)
		opts := provider.GetStorage()
		assert.Equal(t, "/mnt/audit", opts.AuditPath)
	})

	t.Run("dev环境默认放宽日志级别", func(t *testing.T) {
		cfg := &types.AppConfig{
			Environment: types.StringPtr("dev"),
		}
		provider := NewProvider(cfg)
		assert.Equal(t, "debug", provider.GetLog().Level)
	})

	t.Run("显式日志级别优先于环境推导", func(t *testing.T) {
		cfg := &types.AppConfig{
			Environment: types.StringPtr("dev"),
			Log: &types.UserLogConfig{
				Level: types.StringPtr("warn"),
			},
		}
		provider := NewProvider(cfg)
		assert.Equal(t, "warn", provider.GetLog().Level)
	})
}

// TestValidateAppConfig 测试启动前的配置验证
func TestValidateAppConfig(t *testing.T) {
	t.Run("空配置通过验证", func(t *testing.T) {
		assert.NoError(t, ValidateAppConfig(nil))
		assert.NoError(t, ValidateAppConfig(&types.AppConfig{}))
	})

	t.Run("合法配置通过验证", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				Thresholds: map[string]float64{
					"warning":   70,
					"critical":  85,
					"emergency": 95,
				},
				CheckInterval:     types.StringPtr("5s"),
				RecoveryThreshold: types.Float64Ptr(65),
			},
			Storage: &types.UserStorageConfig{
				AuditBackend: types.StringPtr("badger"),
			},
		}
		assert.NoError(t, ValidateAppConfig(cfg))
	})

	t.Run("阈值顺序颠倒被拒绝", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				Thresholds: map[string]float64{
					"warning":  90,
					"critical": 80,
				},
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fuse.thresholds")
	})

	t.Run("未知级别名被拒绝", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				Thresholds: map[string]float64{
					"panic": 99,
				},
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fuse.thresholds.panic")
	})

	t.Run("恢复阈值高于警告阈值被拒绝", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				Thresholds: map[string]float64{
					"warning": 70,
				},
				RecoveryThreshold: types.Float64Ptr(75),
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recovery_threshold")
	})

	t.Run("非法时长被拒绝", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				CheckInterval: types.StringPtr("soon"),
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fuse.check_interval")
	})

	t.Run("未知存储后端被拒绝", func(t *testing.T) {
		cfg := &types.AppConfig{
			Storage: &types.UserStorageConfig{
				AuditBackend: types.StringPtr("redis"),
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.audit_backend")
	})

	t.Run("非法监听地址被拒绝", func(t *testing.T) {
		cfg := &types.AppConfig{
			API: &types.UserAPIConfig{
				Listen: types.StringPtr("not-an-addr"),
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api.listen")
	})

	t.Run("多个错误一次性报告", func(t *testing.T) {
		cfg := &types.AppConfig{
			Fuse: &types.UserFuseConfig{
				CheckInterval: types.StringPtr("-1s"),
			},
			Log: &types.UserLogConfig{
				Level: types.StringPtr("verbose"),
			},
		}
		err := ValidateAppConfig(cfg)
		require.Error(t, err)

		var multi *ValidationErrors
		require.ErrorAs(t, err, &multi)
		assert.Len(t, multi.Errors, 2)
	})
}
