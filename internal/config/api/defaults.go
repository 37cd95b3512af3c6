package api

import "time"

// 诊断 API 默认值
const (
	// defaultEnabled 默认启用诊断接口
	defaultEnabled = true

	// defaultListen 默认只监听本机回环地址
	// 诊断接口暴露进程内存细节且不做鉴权，不应监听公网
	defaultListen = "127.0.0.1:8941"

	// defaultReadTimeout HTTP读取超时
	defaultReadTimeout = 5 * time.Second

	// defaultWriteTimeout HTTP写入超时
	// 诊断查询都是内存操作，5秒足够
	defaultWriteTimeout = 5 * time.Second
)
