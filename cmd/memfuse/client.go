package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// clientTimeout 诊断接口请求超时
const clientTimeout = 10 * time.Second

// apiResponse 诊断接口的统一响应
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// apiGet 向运行中的实例发GET请求并解出data字段
func apiGet(path string, out interface{}) error {
	resp, err := (&http.Client{Timeout: clientTimeout}).Get(globalFlags.Addr + path)
	if err != nil {
		return fmt.Errorf("连接诊断接口失败（实例在运行吗？）: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, out)
}

// apiPost 向运行中的实例发POST请求并解出data字段
func apiPost(path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := (&http.Client{Timeout: clientTimeout}).Post(
		globalFlags.Addr+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("连接诊断接口失败（实例在运行吗？）: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, out)
}

func decodeResponse(body io.Reader, out interface{}) error {
	var envelope apiResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("接口返回错误: %s", envelope.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
