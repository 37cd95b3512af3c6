// Package app 应用装配与生命周期管理
//
// 把配置、日志、事件总线与熔断核心各模块按依赖顺序装配成
// fx应用，并通过 Governor 门面向宿主进程暴露熔断能力。
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownGrace 停止应用时等待各模块收尾的时间
const shutdownGrace = 30 * time.Second

// App 是熔断器应用的对外接口
type App interface {
	// Governor 返回熔断器门面
	Governor() *Governor

	// Stop 停止应用
	Stop() error

	// Wait 阻塞直到收到退出信号
	Wait()
}

// internalApp 熔断器应用的内部实现
type internalApp struct {
	bootstrap *Bootstrap
}

// Governor 返回熔断器门面
func (a *internalApp) Governor() *Governor {
	return a.bootstrap.governor
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 阻塞等待退出信号，收到后优雅停止
func (a *internalApp) Wait() {
	sig := WaitForSignal()
	fmt.Printf("收到信号 %v，正在退出\n", sig)

	if err := a.Stop(); err != nil {
		fmt.Printf("停止应用时出错: %v\n", err)
	}
}

// Start 启动熔断器应用
func Start(appOptions ...Option) (App, error) {
	return BootstrapApp(appOptions...)
}

// WaitForSignal 等待退出信号
func WaitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	return <-signals
}
