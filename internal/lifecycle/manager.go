package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/offgate/offgate/internal/cache"
	"github.com/offgate/offgate/internal/config"
	"github.com/offgate/offgate/internal/logging"
	"github.com/offgate/offgate/internal/notify"
)

// State 描述一个部署版本的生命周期阶段。
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateFailed     State = "failed"
)

// ErrInstallFailed 表示静态分区填充失败，该版本作废，旧版本继续服务。
var ErrInstallFailed = errors.New("installation failed")

// ErrNotInstalled 表示激活被调用时当前版本尚未完成安装。
var ErrNotInstalled = errors.New("version not installed")

// Manager 负责分区的创建、预填充与版本切换 GC。安装与激活都同步完成
// 全部缓存工作后才返回，调用方以此保证切换期间不会被中途打断。
type Manager struct {
	app      config.AppConfig
	store    cache.Store
	client   *http.Client
	logger   *logrus.Logger
	notifier *notify.Notifier

	mu    sync.Mutex
	state State
}

// NewManager 组装生命周期管理器，初始状态为 StateNew。
func NewManager(app config.AppConfig, store cache.Store, client *http.Client, logger *logrus.Logger, notifier *notify.Notifier) *Manager {
	return &Manager{
		app:      app,
		store:    store,
		client:   client,
		logger:   logger,
		notifier: notifier,
		state:    StateNew,
	}
}

// State 返回当前生命周期阶段。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active 返回当前版本是否已接管请求路由。
func (m *Manager) Active() bool {
	return m.State() == StateActive
}

// Install 打开当前版本静态分区并按清单预填充。任何一个清单项失败都视为
// 安装失败：状态进入 Failed，整个版本不会被激活。
func (m *Manager) Install(ctx context.Context) error {
	m.setState(StateInstalling)

	partition := m.app.StaticPartition()
	if err := m.store.Open(ctx, partition); err != nil {
		return m.failInstall(fmt.Errorf("open %s: %w", partition, err))
	}

	for _, path := range m.app.Precache {
		if err := m.precache(ctx, partition, path); err != nil {
			return m.failInstall(fmt.Errorf("precache %s: %w", path, err))
		}
	}

	m.setState(StateInstalled)

	fields := logging.LifecycleFields("install", m.app.Version)
	fields["partition"] = partition
	fields["assets"] = len(m.app.Precache)
	m.logger.WithFields(fields).Info("静态分区填充完成")
	return nil
}

// Activate 枚举全部分区，删除不属于当前版本集合的分区，然后接管所有
// 已连接的应用上下文。切换是原子的：旧版本分区被整体删除，绝不混用。
func (m *Manager) Activate(ctx context.Context) error {
	if state := m.State(); state != StateInstalled && state != StateActive {
		return fmt.Errorf("%w: state=%s", ErrNotInstalled, state)
	}
	m.setState(StateActivating)

	keep := make(map[string]struct{})
	for _, name := range m.app.CurrentPartitions() {
		keep[name] = struct{}{}
	}

	names, err := m.store.Names(ctx)
	if err != nil {
		m.setState(StateInstalled)
		return fmt.Errorf("list partitions: %w", err)
	}

	removed := 0
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := m.store.Remove(ctx, name); err != nil {
			m.setState(StateInstalled)
			return fmt.Errorf("remove stale partition %s: %w", name, err)
		}
		removed++
	}

	m.setState(StateActive)

	fields := logging.LifecycleFields("activate", m.app.Version)
	fields["removed_partitions"] = removed
	fields["claimed_contexts"] = m.notifier.Count()
	m.logger.WithFields(fields).Info("版本接管完成")
	return nil
}

// SkipWaiting 响应应用的 SKIP_WAITING 请求，立即执行版本切换。
func (m *Manager) SkipWaiting(ctx context.Context) error {
	return m.Activate(ctx)
}

// precache 从上游拉取单个清单路径并写入静态分区，非 200 视为失败。
func (m *Manager) precache(ctx context.Context, partition, path string) error {
	target := strings.TrimSuffix(m.app.Upstream, "/") + path
	key, err := cache.NewKey(http.MethodGet, target)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	snap, err := cache.Capture(key, resp)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, partition, key, snap)
}

func (m *Manager) failInstall(cause error) error {
	m.setState(StateFailed)

	fields := logging.LifecycleFields("install", m.app.Version)
	fields["error"] = cause.Error()
	m.logger.WithFields(fields).Error("安装失败，该版本不会激活")
	return fmt.Errorf("%w: %v", ErrInstallFailed, cause)
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
