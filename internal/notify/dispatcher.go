package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Dispatcher 处理应用发往拦截器方向的消息，并把拦截器侧的信号转发给
// 所有上下文。cutover 在收到 SkipWaiting 时触发版本切换。
type Dispatcher struct {
	notifier *Notifier
	prober   *Prober
	cutover  func(context.Context) error
	logger   *logrus.Logger
}

// NewDispatcher 组装分发器，所有依赖均显式注入。
func NewDispatcher(notifier *Notifier, prober *Prober, cutover func(context.Context) error, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		prober:   prober,
		cutover:  cutover,
		logger:   logger,
	}
}

// Dispatch 对消息变体做穷举匹配。广播类消息永不失败；SkipWaiting 的
// 失败向调用方返回，CheckNetwork 的结果走私有回复通道。
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case NetworkStatus:
		d.notifier.Broadcast(m)
		return nil
	case SyncTodos:
		d.notifier.Broadcast(m)
		return nil
	case SkipWaiting:
		if d.cutover == nil {
			return fmt.Errorf("no pending version to activate")
		}
		if d.logger != nil {
			d.logger.WithFields(logrus.Fields{"action": "skip_waiting"}).Info("immediate cutover requested")
		}
		return d.cutover(ctx)
	case CheckNetwork:
		online := d.prober.Check(ctx)
		if m.Reply != nil {
			m.Reply <- online
		}
		return nil
	default:
		return fmt.Errorf("unknown message kind: %s", msg.kind())
	}
}

// Probe 暴露底层探测能力，供 HTTP 控制端点直接复用。
func (d *Dispatcher) Probe(ctx context.Context) bool {
	return d.prober.Check(ctx)
}
