// Package log 提供统一的日志记录接口定义
//
// 为所有模块提供统一的结构化日志接口，底层实现基于zap。
// 日志级别支持运行时动态调整，熔断动作会利用这一能力在
// 高压力时收紧日志输出。
package log

import "go.uber.org/zap"

// LogLevel 日志级别
type LogLevel string

// 标准日志级别
const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// Logger 定义日志记录器接口
type Logger interface {
	// Debug 记录调试级别的日志
	Debug(msg string)

	// Debugf 使用格式化字符串记录调试级别的日志
	Debugf(format string, args ...interface{})

	// Info 记录信息级别的日志
	Info(msg string)

	// Infof 使用格式化字符串记录信息级别的日志
	Infof(format string, args ...interface{})

	// Warn 记录警告级别的日志
	Warn(msg string)

	// Warnf 使用格式化字符串记录警告级别的日志
	Warnf(format string, args ...interface{})

	// Error 记录错误级别的日志
	Error(msg string)

	// Errorf 使用格式化字符串记录错误级别的日志
	Errorf(format string, args ...interface{})

	// Fatal 记录致命级别的日志，然后退出程序
	Fatal(msg string)

	// Fatalf 使用格式化字符串记录致命级别的日志，然后退出程序
	Fatalf(format string, args ...interface{})

	// With 返回一个带有额外字段的Logger
	With(args ...interface{}) Logger

	// Sync 同步日志缓冲区到输出
	Sync() error

	// GetZapLogger 获取原始的zap日志记录器
	GetZapLogger() *zap.Logger
}

// LevelController 日志级别动态控制接口
//
// reduce_log_verbosity 缓解动作通过该接口在内存压力期间
// 收紧日志级别，压力解除后恢复原级别。
type LevelController interface {
	// SetLevel 动态调整日志级别
	SetLevel(level LogLevel)

	// GetLevel 获取当前日志级别
	GetLevel() LogLevel
}
