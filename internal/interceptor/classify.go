package interceptor

import (
	"strings"

	"github.com/offgate/offgate/internal/config"
)

// Class 表示请求的缓存类别，决定走哪条策略。
type Class string

const (
	// ClassStatic 命中应用外壳资源，走 cache-first 策略。
	ClassStatic Class = "static"
	// ClassAPI 命中数据请求，走 network-first 策略。
	ClassAPI Class = "api"
)

// Classifier 根据路径标记与数据源主机模式划分请求类别。
type Classifier struct {
	markers   []string
	dataHosts []string
}

// NewClassifier 从应用配置提取分类规则。
func NewClassifier(app config.AppConfig) *Classifier {
	return &Classifier{
		markers:   app.APIPathMarkers,
		dataHosts: app.DataHosts,
	}
}

// Classify 判定类别：路径包含任一数据端点标记，或目标主机匹配任一
// 数据源模式（后缀匹配），即为 API；其余一律静态。
func (cl *Classifier) Classify(host, path string) Class {
	for _, marker := range cl.markers {
		if strings.Contains(path, marker) {
			return ClassAPI
		}
	}
	if cl.MatchesDataHost(host) {
		return ClassAPI
	}
	return ClassStatic
}

// MatchesDataHost 报告主机是否属于已知数据源。端口在匹配前被剥离。
func (cl *Classifier) MatchesDataHost(host string) bool {
	normalized := strings.ToLower(host)
	if idx := strings.LastIndex(normalized, ":"); idx > 0 && !strings.Contains(normalized[idx:], "]") {
		normalized = normalized[:idx]
	}
	for _, pattern := range cl.dataHosts {
		if pattern == "" {
			continue
		}
		if normalized == pattern || strings.HasSuffix(normalized, "."+pattern) {
			return true
		}
	}
	return false
}
