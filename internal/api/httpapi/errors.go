package httpapi

import "errors"

// errInvalidLimit limit 参数必须是正整数
var errInvalidLimit = errors.New("limit 必须是正整数")
