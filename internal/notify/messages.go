package notify

// 跨上下文消息采用封闭的变体类型：每个变体实现非导出的 kind 方法，
// 分发处按类型穷举匹配，杜绝裸字符串分支。
type Message interface {
	kind() string
}

// NetworkStatus 在每次 API 请求落定后广播，online 表示本次是否走通网络。
type NetworkStatus struct {
	Online bool
}

// SyncTodos 通知所有应用上下文重新拉取并合并本地排队的数据。
type SyncTodos struct {
	Tag string
}

// SkipWaiting 由应用发起，请求等待中的新版本立即接管。
type SkipWaiting struct{}

// CheckNetwork 由应用发起的同步探测请求，结果通过私有 Reply 通道返回。
type CheckNetwork struct {
	Reply chan<- bool
}

const (
	kindNetworkStatus = "NETWORK_STATUS"
	kindSyncTodos     = "SYNC_TODOS"
	kindSkipWaiting   = "SKIP_WAITING"
	kindCheckNetwork  = "CHECK_NETWORK"
)

func (NetworkStatus) kind() string { return kindNetworkStatus }
func (SyncTodos) kind() string     { return kindSyncTodos }
func (SkipWaiting) kind() string   { return kindSkipWaiting }
func (CheckNetwork) kind() string  { return kindCheckNetwork }

// Envelope 将消息转换为对外 JSON 结构，供 HTTP 长轮询投递使用。
func Envelope(msg Message) map[string]interface{} {
	switch m := msg.(type) {
	case NetworkStatus:
		return map[string]interface{}{"type": kindNetworkStatus, "online": m.Online}
	case SyncTodos:
		return map[string]interface{}{"type": kindSyncTodos, "tag": m.Tag}
	case SkipWaiting:
		return map[string]interface{}{"type": kindSkipWaiting}
	case CheckNetwork:
		return map[string]interface{}{"type": kindCheckNetwork}
	default:
		return map[string]interface{}{"type": "UNKNOWN"}
	}
}
