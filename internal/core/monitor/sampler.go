package monitor

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/pbnjay/memory"

	"github.com/visionclip/memfuse/pkg/types"
)

// SystemSampler 基于操作系统统计的内存采样器
//
// 系统使用率来自 total/free 物理内存，进程占用读取 RSS。
// 判断内存压力使用 RSS（物理内存）而非 Go 堆统计：
// mmap 区域会让堆指标虚高，RSS 才反映真实驻留。
type SystemSampler struct{}

// NewSystemSampler 创建系统内存采样器
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{}
}

// Sample 返回当前系统内存使用率（0-100）
func (s *SystemSampler) Sample() (float64, error) {
	total := memory.TotalMemory()
	if total == 0 {
		return 0, nil
	}
	free := memory.FreeMemory()
	used := float64(total-free) / float64(total) * 100
	return used, nil
}

// Usage 返回完整内存快照
func (s *SystemSampler) Usage() (types.MemoryUsage, error) {
	total := memory.TotalMemory()
	usedPercent := 0.0
	if total > 0 {
		usedPercent = float64(total-memory.FreeMemory()) / float64(total) * 100
	}

	return types.MemoryUsage{
		TotalMB:     float64(total) / 1024 / 1024,
		UsedPercent: usedPercent,
		ProcessRSS:  float64(getRSSBytes()) / 1024 / 1024,
	}, nil
}

// getRSSBytes 获取进程真实物理内存（RSS）
//
// Linux 读取 /proc/self/status 的 VmRSS（当前RSS）；
// macOS 使用 Getrusage 的 ru_maxrss（峰值RSS，只增不减）；
// 其他平台返回 0。
func getRSSBytes() uint64 {
	switch runtime.GOOS {
	case "darwin":
		var rusage syscall.Rusage
		if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
			return 0
		}
		// macOS 上 ru_maxrss 单位是字节
		return uint64(rusage.Maxrss)
	case "linux":
		return getRSSBytesFromProc()
	default:
		return 0
	}
}

// getRSSBytesFromProc 从 /proc/self/status 读取 RSS（Linux）
func getRSSBytesFromProc() uint64 {
	file, err := os.Open("/proc/self/status")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			// 格式：VmRSS:    12345 kB
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, err := strconv.ParseUint(fields[1], 10, 64)
				if err != nil {
					return 0
				}
				return kb * 1024
			}
		}
	}

	return 0
}
