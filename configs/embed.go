// Package configs 嵌入默认配置文件
package configs

import _ "embed"

// 嵌入示例配置，作为未指定配置文件时的出厂默认
//
//go:embed memfuse.yaml
var defaultConfig []byte

// GetDefaultConfig 获取内置默认配置内容
func GetDefaultConfig() []byte {
	return defaultConfig
}
