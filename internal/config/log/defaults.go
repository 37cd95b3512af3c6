package log

import (
	"go.uber.org/zap/zapcore"
)

// 日志配置默认值
const (
	// defaultLogLevel 默认日志级别设为"info"
	// 原因：info级别平衡了信息量和性能，记录熔断触发、动作执行
	// 等重要事件但不记录每次采样
	defaultLogLevel = "info"

	// defaultToConsole 默认启用控制台输出
	// 治理器通常作为边车进程随推理服务启动，控制台输出便于联调
	defaultToConsole = true

	// defaultFilePath 默认日志文件路径
	defaultFilePath = "logs/memfuse.log"

	// === 日志轮转配置 ===

	// defaultMaxSize 单个日志文件最大大小设为50MB
	// 治理器自身的日志量远小于业务服务，50MB可覆盖数周
	defaultMaxSize = 50

	// defaultMaxBackups 最大备份文件数设为5
	defaultMaxBackups = 5

	// defaultMaxAge 日志文件最大保留天数设为30天
	// 覆盖大多数内存问题排查的时间窗口
	defaultMaxAge = 30

	// defaultCompress 默认启用历史日志压缩
	defaultCompress = true

	// === 调试配置 ===

	// defaultEnableCaller 默认启用调用者信息
	defaultEnableCaller = true

	// defaultEnableStacktrace 默认对Error级别启用堆栈跟踪
	defaultEnableStacktrace = true
)

// 默认的日志级别映射
var defaultLevelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
}
