package cache

import (
	"bytes"
	"io"
	"net/http"
	"testing"
)

func TestCaptureLeavesBodyReadable(t *testing.T) {
	key := mustKey(t, "GET", "http://app.local/todos")
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"ok":true}`))),
	}

	snap, err := Capture(key, resp)
	if err != nil {
		t.Fatalf("capture error: %v", err)
	}
	if string(snap.Body) != `{"ok":true}` {
		t.Fatalf("snapshot body mismatch: %s", string(snap.Body))
	}

	// 快照是独立副本：调用方仍可完整读取响应体。
	remaining, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("re-read body error: %v", err)
	}
	if string(remaining) != `{"ok":true}` {
		t.Fatalf("response body should be reset, got %s", string(remaining))
	}

	snap.Header.Set("Content-Type", "text/plain")
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("snapshot header should not alias response header")
	}
}
