// Package syncretry 是宿主平台延迟重试设施的进程内实现：离线被观测到后，
// 调度器按标签挂起一次后台重试，待探测恢复成功时通知所有应用上下文
// 重新拉取并核对本地排队的状态。这里只转发信号，不做任何数据合并。
package syncretry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/offgate/offgate/internal/notify"
)

// Scheduler 管理按标签登记的后台重试。同一标签同时只存在一次挂起的
// 重试，重复 Arm 是幂等的。
type Scheduler struct {
	notifier *notify.Notifier
	prober   *notify.Prober
	logger   *logrus.Logger

	initialBackoff time.Duration
	maxRetries     int

	mu    sync.Mutex
	tags  []string
	armed map[string]bool
	done  chan struct{}
	once  sync.Once
}

// NewScheduler 构建调度器，backoff 为首次重试前的等待，之后逐次翻倍。
func NewScheduler(notifier *notify.Notifier, prober *notify.Prober, logger *logrus.Logger, backoff time.Duration, maxRetries int) *Scheduler {
	if backoff <= 0 {
		backoff = time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Scheduler{
		notifier:       notifier,
		prober:         prober,
		logger:         logger,
		initialBackoff: backoff,
		maxRetries:     maxRetries,
		armed:          make(map[string]bool),
		done:           make(chan struct{}),
	}
}

// Register 登记一个重试标签，重复登记被忽略。
func (s *Scheduler) Register(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags {
		if existing == tag {
			return
		}
	}
	s.tags = append(s.tags, tag)
}

// Arm 为指定标签挂起一次后台重试；标签未登记或已挂起时不做任何事。
func (s *Scheduler) Arm(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered := false
	for _, existing := range s.tags {
		if existing == tag {
			registered = true
			break
		}
	}
	if !registered || s.armed[tag] {
		return
	}
	s.armed[tag] = true
	go s.retry(tag)
}

// ArmAll 为全部已登记标签挂起重试，拦截器在网络失败时调用。
func (s *Scheduler) ArmAll() {
	s.mu.Lock()
	tags := append([]string(nil), s.tags...)
	s.mu.Unlock()

	for _, tag := range tags {
		s.Arm(tag)
	}
}

// Close 停止所有挂起的重试，幂等。
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.done) })
}

// retry 按指数退避探测网络，首次成功即广播同步信号并解除挂起。
func (s *Scheduler) retry(tag string) {
	defer s.disarm(tag)

	backoff := s.initialBackoff
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2

		if !s.prober.Check(context.Background()) {
			continue
		}

		s.notifier.Broadcast(notify.SyncTodos{Tag: tag})
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"action":  "background_sync",
				"tag":     tag,
				"attempt": attempt,
			}).Info("连通性恢复，已通知应用上下文")
		}
		return
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"action": "background_sync",
			"tag":    tag,
		}).Warn("重试次数耗尽，放弃本轮同步")
	}
}

func (s *Scheduler) disarm(tag string) {
	s.mu.Lock()
	delete(s.armed, tag)
	s.mu.Unlock()
}
