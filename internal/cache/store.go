package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Store 负责管理版本化分区内的快照读写。磁盘布局遵循：
//
//	<StoragePath>/<partition>/<sha1(method+url)>.json
//
// 每个条目是一份完整的响应快照（状态码 + 头部 + 正文副本）。
type Store interface {
	// Open 确保分区存在，分区按需创建、可重复打开。
	Open(ctx context.Context, partition string) error

	// Get 返回指定分区内的快照。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, partition string, key Key) (*Snapshot, error)

	// Put 将快照写入分区。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件。同键并发写入为 last-write-wins。
	Put(ctx context.Context, partition string, key Key, snap *Snapshot) error

	// Remove 整体删除一个分区及其全部条目，用于版本切换时的 GC。
	Remove(ctx context.Context, partition string) error

	// Names 枚举当前磁盘上存在的所有分区名。
	Names(ctx context.Context) ([]string, error)
}

// Key 唯一定位一个缓存条目，由请求方法与规范化 URL 组成。
type Key struct {
	Method string
	URL    string
}

// NewKey 规范化请求标识：方法统一大写、URL 去掉 fragment、保留 query。
func NewKey(method, rawURL string) (Key, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, err
	}
	parsed.Fragment = ""
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = http.MethodGet
	}
	return Key{Method: m, URL: parsed.String()}, nil
}

// Digest 返回条目文件名使用的摘要，避免 URL 字符落盘。
func (k Key) Digest() string {
	sum := sha1.Sum([]byte(k.Method + " " + k.URL))
	return hex.EncodeToString(sum[:])
}

// Snapshot 是响应在缓存时刻的独立副本。正文在入缓存前即被完整读取，
// 因为上游响应体只能被消费一次，store 必须持有自己的拷贝。
type Snapshot struct {
	Key        Key         `json:"key"`
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CapturedAt time.Time   `json:"captured_at"`
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
