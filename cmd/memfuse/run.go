package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/visionclip/memfuse/configs"
	"github.com/visionclip/memfuse/internal/app"
	config "github.com/visionclip/memfuse/internal/config"
)

var runNoAPI bool

// runCmd 启动熔断器守护进程
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动熔断器守护进程",
	Long: `启动内存熔断器并阻塞运行，收到 SIGINT/SIGTERM 后优雅退出。

未指定 --config 时使用内置默认配置。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		options := []app.Option{}

		if globalFlags.ConfigPath != "" {
			options = append(options, app.WithConfigFile(globalFlags.ConfigPath))
			pterm.Info.Printfln("使用配置文件: %s", globalFlags.ConfigPath)
		} else {
			appConfig, err := config.ParseAppConfig(configs.GetDefaultConfig())
			if err != nil {
				return fmt.Errorf("解析内置配置失败: %w", err)
			}
			options = append(options, app.WithConfig(appConfig))
			pterm.Info.Println("未指定配置文件，使用内置默认配置")
		}

		if runNoAPI {
			options = append(options, app.WithoutAPI())
		}

		application, err := app.Start(options...)
		if err != nil {
			return fmt.Errorf("启动熔断器失败: %w", err)
		}

		pterm.Success.Println("内存熔断器已启动，按 Ctrl+C 停止")
		application.Wait()
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "禁用HTTP诊断接口")
}
