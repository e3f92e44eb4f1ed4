package interceptor

import "errors"

// ErrNoCachedData 表示网络与缓存双双落空，是单个请求的终态失败。
var ErrNoCachedData = errors.New("no cached data available")
