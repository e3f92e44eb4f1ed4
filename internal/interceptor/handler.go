package interceptor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/offgate/offgate/internal/cache"
	"github.com/offgate/offgate/internal/config"
	"github.com/offgate/offgate/internal/lifecycle"
	"github.com/offgate/offgate/internal/logging"
	"github.com/offgate/offgate/internal/notify"
	"github.com/offgate/offgate/internal/server"
)

// Options 汇总 Handler 的全部依赖，均显式注入、无隐藏单例。
type Options struct {
	Client    *http.Client
	Logger    *logrus.Logger
	Store     cache.Store
	Notifier  *notify.Notifier
	Lifecycle *lifecycle.Manager
	App       config.AppConfig

	// OnOffline 在 API 请求观测到网络失败时触发，用于挂起后台重试。
	OnOffline func()
}

// Handler 是请求拦截器：对每个出站请求分类，并按类别套用
// cache-first（静态）或 network-first（API）策略。
type Handler struct {
	client     *http.Client
	logger     *logrus.Logger
	store      cache.Store
	notifier   *notify.Notifier
	lifecycle  *lifecycle.Manager
	classifier *Classifier
	app        config.AppConfig
	onOffline  func()
}

// NewHandler 构建拦截器。
func NewHandler(opts Options) *Handler {
	return &Handler{
		client:     opts.Client,
		logger:     opts.Logger,
		store:      opts.Store,
		notifier:   opts.Notifier,
		lifecycle:  opts.Lifecycle,
		classifier: NewClassifier(opts.App),
		app:        opts.App,
		onOffline:  opts.OnOffline,
	}
}

// Handle 执行分类与对应策略。拦截边界自身绝不崩溃：所有失败都在
// 最近的边界转为回退动作或带类型的失败响应。
func (h *Handler) Handle(c fiber.Ctx) error {
	if !h.lifecycle.Active() {
		return writeError(c, fiber.StatusServiceUnavailable, "not_activated")
	}

	started := time.Now()
	requestID := server.RequestID(c)
	host := hostHeader(c)
	path := string(c.Request().URI().Path())
	target := h.resolveTarget(c, host)

	key, err := cache.NewKey(c.Method(), target)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	class := h.classifier.Classify(host, path)
	if class == ClassAPI {
		return h.handleAPI(c, key, target, requestID, started)
	}
	return h.handleStatic(c, key, target, requestID, started)
}

// handleStatic 实现 cache-first：命中即返回，绝不回源；未命中回源，
// 完整同源 200 先写缓存再返回；回源失败时导航请求退回外壳文档。
func (h *Handler) handleStatic(c fiber.Ctx, key cache.Key, target, requestID string, started time.Time) error {
	partition := h.app.StaticPartition()
	ctx := requestContext(c)
	cacheable := c.Method() == http.MethodGet

	if cacheable {
		snap, err := h.store.Get(ctx, partition, key)
		switch {
		case err == nil:
			h.logResult(partition, "cache-first", key, target, requestID, snap.Status, true, started, nil)
			return serveSnapshot(c, snap, requestID)
		case errors.Is(err, cache.ErrNotFound):
			// miss, continue
		default:
			h.logger.WithError(err).
				WithFields(logrus.Fields{"partition": partition, "path": key.URL}).
				Warn("cache_get_failed")
		}
	}

	resp, err := h.fetchUpstream(c, target)
	if err != nil {
		if isNavigation(c) {
			if shell := h.shellSnapshot(ctx); shell != nil {
				h.logResult(partition, "cache-first", key, target, requestID, shell.Status, true, started, nil)
				return serveSnapshot(c, shell, requestID)
			}
		}
		h.logResult(partition, "cache-first", key, target, requestID, 0, false, started, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	if cacheable && resp.StatusCode == http.StatusOK && sameOrigin(resp, target) {
		snap, capErr := cache.Capture(key, resp)
		if capErr != nil {
			h.logResult(partition, "cache-first", key, target, requestID, resp.StatusCode, false, started, capErr)
			return writeError(c, fiber.StatusBadGateway, "upstream_failed")
		}
		if putErr := h.store.Put(ctx, partition, key, snap); putErr != nil {
			h.logger.WithError(putErr).
				WithFields(logrus.Fields{"partition": partition, "path": key.URL}).
				Warn("cache_write_failed")
		}
	}

	h.logResult(partition, "cache-first", key, target, requestID, resp.StatusCode, false, started, nil)
	return serveUpstream(c, resp, requestID)
}

// handleAPI 实现 network-first：无条件回源；成功先写缓存、再广播
// online=true；失败退回 api-data 分区，命中则广播 offline=false 并返回
// 缓存，未命中即终态 NoCachedData。
func (h *Handler) handleAPI(c fiber.Ctx, key cache.Key, target, requestID string, started time.Time) error {
	partition := h.app.APIPartition()
	ctx := requestContext(c)

	resp, err := h.fetchUpstream(c, target)
	if err == nil && isOK(resp.StatusCode) {
		defer resp.Body.Close()

		if c.Method() == http.MethodGet {
			snap, capErr := cache.Capture(key, resp)
			if capErr != nil {
				h.logResult(partition, "network-first", key, target, requestID, resp.StatusCode, false, started, capErr)
				return writeError(c, fiber.StatusBadGateway, "upstream_failed")
			}
			if putErr := h.store.Put(ctx, partition, key, snap); putErr != nil {
				h.logger.WithError(putErr).
					WithFields(logrus.Fields{"partition": partition, "path": key.URL}).
					Warn("cache_write_failed")
			}
		}
		// 缓存更新先于在线事件：订阅者收到 online=true 时数据已落盘。
		h.notifier.Broadcast(notify.NetworkStatus{Online: true})

		h.logResult(partition, "network-first", key, target, requestID, resp.StatusCode, false, started, nil)
		return serveUpstream(c, resp, requestID)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	if h.onOffline != nil {
		h.onOffline()
	}

	snap, getErr := h.store.Get(ctx, partition, key)
	if getErr == nil {
		h.notifier.Broadcast(notify.NetworkStatus{Online: false})
		h.logResult(partition, "network-first", key, target, requestID, snap.Status, true, started, nil)
		return serveSnapshot(c, snap, requestID)
	}

	failure := err
	if failure == nil {
		failure = ErrNoCachedData
	}
	h.logResult(partition, "network-first", key, target, requestID, status, false, started, failure)
	return writeError(c, fiber.StatusServiceUnavailable, "no_cached_data")
}

// shellSnapshot 返回外壳文档的缓存副本，不存在时为 nil。
func (h *Handler) shellSnapshot(ctx context.Context) *cache.Snapshot {
	target := strings.TrimSuffix(h.app.Upstream, "/") + h.app.ShellDocument
	key, err := cache.NewKey(http.MethodGet, target)
	if err != nil {
		return nil
	}
	snap, err := h.store.Get(ctx, h.app.StaticPartition(), key)
	if err != nil {
		return nil
	}
	return snap
}

// resolveTarget 计算真实回源地址：数据源主机按原协议直连，其余请求
// 一律转发到配置的上游源站。
func (h *Handler) resolveTarget(c fiber.Ctx, host string) string {
	uri := c.Request().URI()
	pathAndQuery := string(uri.Path())
	if query := uri.QueryString(); len(query) > 0 {
		pathAndQuery += "?" + string(query)
	}

	if h.classifier.MatchesDataHost(host) {
		scheme := c.Protocol()
		if scheme == "" {
			scheme = "https"
		}
		return scheme + "://" + host + pathAndQuery
	}
	return strings.TrimSuffix(h.app.Upstream, "/") + pathAndQuery
}

func (h *Handler) fetchUpstream(c fiber.Ctx, target string) (*http.Response, error) {
	req, err := buildUpstreamRequest(c, target)
	if err != nil {
		return nil, err
	}
	return h.client.Do(req)
}

func buildUpstreamRequest(c fiber.Ctx, target string) (*http.Request, error) {
	ctx := requestContext(c)

	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target, body)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	return req, nil
}

func (h *Handler) logResult(
	partition string,
	strategy string,
	key cache.Key,
	target string,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(partition, strategy, key.URL, cacheHit)
	fields["action"] = "intercept"
	fields["target"] = target
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("intercept_failed")
		return
	}
	h.logger.WithFields(fields).Info("intercept_complete")
}

// serveSnapshot 将缓存副本写回调用方，语义上等价于当时的上游响应。
func serveSnapshot(c fiber.Ctx, snap *cache.Snapshot, requestID string) error {
	copyResponseHeaders(c, snap.Header)
	c.Set("X-Offgate-Cache-Hit", "true")
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(snap.Status)
	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(snap.Body)
}

// serveUpstream 将上游响应流式写回调用方。
func serveUpstream(c fiber.Ctx, resp *http.Response, requestID string) error {
	copyResponseHeaders(c, resp.Header)
	c.Set("X-Offgate-Cache-Hit", "false")
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(c.Response().BodyWriter(), resp.Body); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "proxy stream failed")
	}
	return nil
}

// sameOrigin 保守的不透明响应策略：重定向落到跨源地址的响应可以返回
// 给调用方，但绝不写入缓存。
func sameOrigin(resp *http.Response, target string) bool {
	if resp.Request == nil || resp.Request.URL == nil {
		return true
	}
	key, err := cache.NewKey(http.MethodGet, target)
	if err != nil {
		return false
	}
	requested, err := cache.NewKey(http.MethodGet, resp.Request.URL.String())
	if err != nil {
		return false
	}
	return hostOf(requested.URL) == hostOf(key.URL)
}

func hostOf(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexAny(trimmed, "/?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.ToLower(trimmed)
}

// isNavigation 判断页面导航请求：携带 navigate 意图或以 HTML 为首选。
func isNavigation(c fiber.Ctx) bool {
	if c.Method() != http.MethodGet {
		return false
	}
	if string(c.Request().Header.Peek("Sec-Fetch-Mode")) == "navigate" {
		return true
	}
	return strings.Contains(string(c.Request().Header.Peek(fiber.HeaderAccept)), "text/html")
}

func isOK(status int) bool {
	return status >= 200 && status < 300
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func hostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return c.Hostname()
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
