package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/visionclip/memfuse/pkg/types"
)

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置验证失败 [%s]: %s", e.Field, e.Message)
}

// ValidationErrors 多个验证错误
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	msg := "配置验证失败，发现以下问题：\n"
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// ValidateAppConfig 启动前验证用户配置
//
// 只检查用户显式写出的字段，缺省字段由各配置区补默认值。
// 阈值、时间间隔这类写错会让熔断器整体失效的参数采取fail-fast，
// 启动时直接报错而不是带病运行。
func ValidateAppConfig(appConfig *types.AppConfig) error {
	if appConfig == nil {
		return nil
	}

	var errors []error

	errors = append(errors, validateFuseConfig(appConfig.Fuse)...)
	errors = append(errors, validateMonitorConfig(appConfig.Monitor)...)
	errors = append(errors, validateStorageConfig(appConfig.Storage)...)
	errors = append(errors, validateLogConfig(appConfig.Log)...)
	errors = append(errors, validateAPIConfig(appConfig.API)...)

	if len(errors) > 0 {
		return &ValidationErrors{Errors: errors}
	}
	return nil
}

// validateFuseConfig 验证熔断配置：阈值递增且落在(0,100]，时间字段可解析
func validateFuseConfig(cfg *types.UserFuseConfig) []error {
	if cfg == nil {
		return nil
	}

	var errors []error

	if len(cfg.Thresholds) > 0 {
		for name, value := range cfg.Thresholds {
			level, err := types.ParseFuseLevel(name)
			if err != nil || level == types.FuseLevelNormal {
				errors = append(errors, &ValidationError{
					Field:   "fuse.thresholds." + name,
					Message: "未知的熔断级别，只支持 warning/critical/emergency",
				})
				continue
			}
			if value <= 0 || value > 100 {
				errors = append(errors, &ValidationError{
					Field:   "fuse.thresholds." + name,
					Message: fmt.Sprintf("阈值 %.1f 必须落在 (0, 100] 区间", value),
				})
			}
		}

		// 级别间阈值必须严格递增，否则级别判定会互相覆盖
		warning, hasWarning := cfg.Thresholds["warning"]
		critical, hasCritical := cfg.Thresholds["critical"]
		emergency, hasEmergency := cfg.Thresholds["emergency"]
		if hasWarning && hasCritical && warning >= critical {
			errors = append(errors, &ValidationError{
				Field:   "fuse.thresholds",
				Message: fmt.Sprintf("warning阈值 %.1f 必须小于 critical阈值 %.1f", warning, critical),
			})
		}
		if hasCritical && hasEmergency && critical >= emergency {
			errors = append(errors, &ValidationError{
				Field:   "fuse.thresholds",
				Message: fmt.Sprintf("critical阈值 %.1f 必须小于 emergency阈值 %.1f", critical, emergency),
			})
		}
		if hasWarning && cfg.RecoveryThreshold != nil && *cfg.RecoveryThreshold >= warning {
			errors = append(errors, &ValidationError{
				Field:   "fuse.recovery_threshold",
				Message: fmt.Sprintf("恢复阈值 %.1f 必须小于 warning阈值 %.1f，否则级别会来回抖动", *cfg.RecoveryThreshold, warning),
			})
		}
	}

	errors = append(errors, validateDuration("fuse.check_interval", cfg.CheckInterval)...)
	errors = append(errors, validateDuration("fuse.stabilize_window", cfg.StabilizeWindow)...)
	errors = append(errors, validateDuration("fuse.recovery_cooldown", cfg.RecoveryCooldown)...)

	return errors
}

// validateMonitorConfig 验证监控配置
func validateMonitorConfig(cfg *types.UserMonitorConfig) []error {
	if cfg == nil {
		return nil
	}

	var errors []error

	errors = append(errors, validateDuration("monitor.sample_interval", cfg.SampleInterval)...)

	if cfg.WindowSize != nil && *cfg.WindowSize < 2 {
		errors = append(errors, &ValidationError{
			Field:   "monitor.window_size",
			Message: "采样窗口至少要容纳2个样本才能计算趋势",
		})
	}
	if cfg.AmplifyAbove != nil && (*cfg.AmplifyAbove <= 0 || *cfg.AmplifyAbove >= 100) {
		errors = append(errors, &ValidationError{
			Field:   "monitor.amplify_above",
			Message: fmt.Sprintf("放大起点 %.1f 必须落在 (0, 100) 区间", *cfg.AmplifyAbove),
		})
	}
	if cfg.PredictHorizon != nil && *cfg.PredictHorizon <= 0 {
		errors = append(errors, &ValidationError{
			Field:   "monitor.predict_horizon",
			Message: "预测步数必须 > 0",
		})
	}

	return errors
}

// validateStorageConfig 验证存储配置
func validateStorageConfig(cfg *types.UserStorageConfig) []error {
	if cfg == nil {
		return nil
	}

	var errors []error

	if cfg.AuditBackend != nil {
		backend := strings.ToLower(strings.TrimSpace(*cfg.AuditBackend))
		switch backend {
		case "memory", "file", "badger":
		default:
			errors = append(errors, &ValidationError{
				Field:   "storage.audit_backend",
				Message: fmt.Sprintf("未知的审计存储后端 %q，只支持 memory/file/badger", *cfg.AuditBackend),
			})
		}
	}
	if cfg.AuditCapacity != nil && *cfg.AuditCapacity <= 0 {
		errors = append(errors, &ValidationError{
			Field:   "storage.audit_capacity",
			Message: "审计事件容量必须 > 0",
		})
	}

	return errors
}

// validateLogConfig 验证日志配置
func validateLogConfig(cfg *types.UserLogConfig) []error {
	if cfg == nil || cfg.Level == nil {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(*cfg.Level)) {
	case "debug", "info", "warn", "error", "fatal":
		return nil
	default:
		return []error{&ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("未知的日志级别 %q，只支持 debug/info/warn/error/fatal", *cfg.Level),
		}}
	}
}

// validateAPIConfig 验证API配置
func validateAPIConfig(cfg *types.UserAPIConfig) []error {
	if cfg == nil || cfg.Listen == nil {
		return nil
	}

	if _, _, err := net.SplitHostPort(*cfg.Listen); err != nil {
		return []error{&ValidationError{
			Field:   "api.listen",
			Message: fmt.Sprintf("监听地址 %q 无效，期望 host:port 格式: %v", *cfg.Listen, err),
		}}
	}
	return nil
}

// validateDuration 验证可选的时长字段可解析且为正
func validateDuration(field string, value *string) []error {
	if value == nil {
		return nil
	}

	raw := strings.TrimSpace(*value)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return []error{&ValidationError{
			Field:   field,
			Message: fmt.Sprintf("时长格式无效: %q（期望类似 \"30s\"）", raw),
		}}
	}
	if d <= 0 {
		return []error{&ValidationError{
			Field:   field,
			Message: fmt.Sprintf("时长必须 > 0，当前为 %q", raw),
		}}
	}
	return nil
}
