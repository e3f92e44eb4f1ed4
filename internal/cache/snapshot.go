package cache

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// Capture 读取响应正文并生成快照，随后将正文重置为可再次读取的副本，
// 调用方在 Capture 之后仍可正常向下游写出响应体。
func Capture(key Key, resp *http.Response) (*Snapshot, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(resp.Header))
	for k, values := range resp.Header {
		header[k] = append([]string(nil), values...)
	}

	return &Snapshot{
		Key:        key,
		Status:     resp.StatusCode,
		Header:     header,
		Body:       body,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// ContentType 返回快照记录的 Content-Type，缺失时为空字符串。
func (s *Snapshot) ContentType() string {
	if s == nil || s.Header == nil {
		return ""
	}
	return s.Header.Get("Content-Type")
}
