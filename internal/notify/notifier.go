package notify

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// contextBuffer 是单个订阅者的待收消息上限，超出即丢弃（fire-and-forget）。
const contextBuffer = 16

// AppContext 表示一个已连接的应用上下文，消息经由 C 异步送达。
type AppContext struct {
	ID string
	C  chan Message
}

// Notifier 维护全部已连接上下文，并向它们广播拦截器侧的信号。
// 拦截器与应用之间不共享内存，所有通信都经由显式消息传递。
type Notifier struct {
	logger *logrus.Logger

	mu   sync.RWMutex
	subs map[string]*AppContext
}

// NewNotifier 构建空的通知器，logger 可用于记录丢弃的消息。
func NewNotifier(logger *logrus.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		subs:   make(map[string]*AppContext),
	}
}

// Subscribe 注册一个新的应用上下文并返回其专属消息通道。
func (n *Notifier) Subscribe() *AppContext {
	sub := &AppContext{
		ID: uuid.NewString(),
		C:  make(chan Message, contextBuffer),
	}

	n.mu.Lock()
	n.subs[sub.ID] = sub
	n.mu.Unlock()
	return sub
}

// Unsubscribe 摘除上下文并关闭其通道，重复调用是安全的。
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	sub, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()

	if ok {
		close(sub.C)
	}
}

// Lookup 根据 ID 返回上下文，供长轮询端点定位自己的通道。
func (n *Notifier) Lookup(id string) (*AppContext, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	sub, ok := n.subs[id]
	return sub, ok
}

// Count 返回当前已连接的上下文数量。
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Broadcast 向所有上下文投递消息。投递是尽力而为：通道已满的慢消费者
// 会丢失本条消息，广播本身永不阻塞拦截路径。
func (n *Notifier) Broadcast(msg Message) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, sub := range n.subs {
		select {
		case sub.C <- msg:
		default:
			if n.logger != nil {
				n.logger.WithFields(logrus.Fields{
					"action":  "notify_drop",
					"context": sub.ID,
					"kind":    msg.kind(),
				}).Warn("subscriber buffer full")
			}
		}
	}
}
