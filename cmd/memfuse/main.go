// memfuse 内存熔断器守护进程与诊断客户端
//
// run 子命令在本机启动熔断器；其余子命令通过HTTP诊断接口
// 查询一个正在运行的实例。
package main

func main() {
	Execute()
}
