package types

// 指针辅助函数，便于构造可选配置字段

// StringPtr 返回字符串指针
func StringPtr(s string) *string { return &s }

// IntPtr 返回整型指针
func IntPtr(i int) *int { return &i }

// BoolPtr 返回布尔指针
func BoolPtr(b bool) *bool { return &b }

// Float64Ptr 返回浮点指针
func Float64Ptr(f float64) *float64 { return &f }
