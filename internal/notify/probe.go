package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober 执行轻量可达性探测。探测失败本身就是有效信息（online=false），
// 永远不会以错误形式上抛。
type Prober struct {
	endpoint string
	client   *http.Client
	logger   *logrus.Logger
}

// NewProber 构建探测器，timeout 独立于缓存策略使用的上游超时。
func NewProber(endpoint string, timeout time.Duration, logger *logrus.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Check 对已知端点发起一次 GET，2xx 视为在线，其余一律离线。
func (p *Prober) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if p.logger != nil {
			p.logger.WithFields(logrus.Fields{
				"action":   "probe",
				"endpoint": p.endpoint,
			}).Debug(err.Error())
		}
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
