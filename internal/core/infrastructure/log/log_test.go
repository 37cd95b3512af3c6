package log

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logconfig "github.com/visionclip/memfuse/internal/config/log"
	logInterface "github.com/visionclip/memfuse/pkg/interfaces/infrastructure/log"
)

// captureOutput 捕获标准输出
func captureOutput(f func()) string {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// 备份全局日志记录器
	mu.RLock()
	oldLogger := globalLogger
	mu.RUnlock()

	// 设置标准输出的日志记录器
	options := &logconfig.LogOptions{
		Level:     "info",
		FilePath:  "",
		ToConsole: true,
	}
	logConfig := logconfig.New(nil)
	*logConfig.GetOptions() = *options
	logger, _ := New(logConfig)
	SetLogger(logger)

	f()

	logger.Sync()

	w.Close()
	os.Stdout = oldStdout

	SetLogger(oldLogger)

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// TestInfoLog 测试信息级别日志
func TestInfoLog(t *testing.T) {
	output := captureOutput(func() {
		Info("测试信息日志")
	})

	if !strings.Contains(output, "测试信息日志") {
		t.Error("日志输出中应包含消息内容")
	}

	if !strings.Contains(output, "\"level\":\"info\"") && !strings.Contains(output, "INFO") {
		t.Error("日志输出中应包含正确的日志级别")
	}
}

// TestStructuredLogging 测试结构化日志
func TestStructuredLogging(t *testing.T) {
	output := captureOutput(func() {
		With("action", "clear_cache", "reduction_mb", 42).Info("结构化日志测试")
	})

	if !strings.Contains(output, "action") || !strings.Contains(output, "clear_cache") {
		t.Error("日志输出中应包含action=clear_cache")
	}
	if !strings.Contains(output, "reduction_mb") || !strings.Contains(output, "42") {
		t.Error("日志输出中应包含reduction_mb=42")
	}
	if !strings.Contains(output, "结构化日志测试") {
		t.Error("日志输出中应包含消息内容")
	}
}

// TestDynamicLevelAdjustment 测试运行时日志级别调整
func TestDynamicLevelAdjustment(t *testing.T) {
	logConfig := logconfig.New(nil)
	logConfig.GetOptions().ToConsole = true
	logConfig.GetOptions().FilePath = ""

	logger, err := New(logConfig)
	if err != nil {
		t.Fatal(err)
	}

	concrete, ok := logger.(*Logger)
	if !ok {
		t.Fatal("期望获得 *Logger 具体类型")
	}

	if concrete.GetLevel() != logInterface.InfoLevel {
		t.Errorf("默认级别应为info，实际 %s", concrete.GetLevel())
	}

	concrete.SetLevel(logInterface.ErrorLevel)
	if concrete.GetLevel() != logInterface.ErrorLevel {
		t.Errorf("调整后级别应为error，实际 %s", concrete.GetLevel())
	}

	// 派生logger共享同一个级别控制
	derived := concrete.With("module", "fuse").(*Logger)
	if derived.GetLevel() != logInterface.ErrorLevel {
		t.Error("派生logger应共享级别设置")
	}

	concrete.SetLevel(logInterface.DebugLevel)
	if derived.GetLevel() != logInterface.DebugLevel {
		t.Error("级别调整应对派生logger同步生效")
	}
}

// TestFileLogging 测试文件日志输出
func TestFileLogging(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "memfuse.log")

	logConfig := logconfig.New(nil)
	logConfig.GetOptions().ToConsole = false
	logConfig.GetOptions().FilePath = logPath

	logger, err := New(logConfig)
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("写入文件的日志")
	logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}

	if !strings.Contains(string(data), "写入文件的日志") {
		t.Error("日志文件中应包含消息内容")
	}
	if !strings.Contains(string(data), "\"level\":\"info\"") {
		t.Error("文件日志应为JSON格式")
	}
}
