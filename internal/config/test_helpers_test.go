package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			StoragePath:     "./storage",
			UpstreamTimeout: Duration(30 * time.Second),
			ProbeTimeout:    Duration(5 * time.Second),
			MaxRetries:      3,
			InitialBackoff:  Duration(time.Second),
		},
		App: AppConfig{
			Version:        "v2",
			Upstream:       "http://app.local",
			ShellDocument:  "/index.html",
			Precache:       []string{"/", "/index.html"},
			APIPathMarkers: []string{"/todos"},
		},
	}
}
