package fuse

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pbnjay/memory"
)

// processInfo /proc 扫描得到的单个进程视图
type processInfo struct {
	PID        int
	Name       string
	RSSMB      float64
	MemPercent float64
}

// listSystemProcesses 扫描 /proc 获取各进程的常驻内存占比
//
// 单个进程读取失败多半是扫描期间进程退出，直接跳过。
func listSystemProcesses() ([]processInfo, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("扫描/proc失败: %w", err)
	}

	totalMB := float64(memory.TotalMemory()) / (1 << 20)
	if totalMB <= 0 {
		return nil, fmt.Errorf("无法获取机器总内存")
	}
	pageMB := float64(os.Getpagesize()) / (1 << 20)

	var processes []processInfo
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
		if err != nil {
			continue
		}
		statm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "statm"))
		if err != nil {
			continue
		}
		fields := strings.Fields(string(statm))
		if len(fields) < 2 {
			continue
		}
		resident, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}

		rssMB := resident * pageMB
		processes = append(processes, processInfo{
			PID:        pid,
			Name:       strings.TrimSpace(string(comm)),
			RSSMB:      rssMB,
			MemPercent: rssMB / totalMB * 100,
		})
	}
	return processes, nil
}

// terminateProcess 先发 SIGTERM 等待退出，超时后补 SIGKILL
func terminateProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("发送SIGTERM失败: %w", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		// 信号0只探测进程是否仍然存在
		if err := syscall.Kill(pid, 0); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}
