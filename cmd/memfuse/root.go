package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath string // 配置文件路径
	Addr       string // 诊断接口地址（客户端子命令使用）
}

var globalFlags GlobalFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "memfuse",
	Short: "本地推理进程的内存熔断器",
	Long: `memfuse - 内存压力熔断器

为本机大模型推理进程提供内存保护：持续监控系统内存压力，
越过阈值时分级执行缓解动作（清缓存、强制GC、释放资源、
卸载模型），压力回落后自动恢复。

使用方式:
  memfuse run                 # 启动熔断器守护进程
  memfuse status              # 查询运行中实例的状态
  memfuse events --type ...   # 查询审计事件
  memfuse diagnose            # 对当前压力走势做诊断
  memfuse trigger critical    # 手工触发熔断`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "配置文件路径 (YAML)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Addr, "addr", "http://127.0.0.1:8941", "诊断接口地址")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(versionCmd)
}
