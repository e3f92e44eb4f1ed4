package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.ProbeTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ProbeTimeout", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}

	a := c.App
	if a.Version == "" {
		return newFieldError(appField("Version"), "不能为空，分区名依赖版本号")
	}
	if strings.ContainsAny(a.Version, "/\\ ") {
		return newFieldError(appField("Version"), "不允许包含路径分隔符或空格")
	}
	if err := validateEndpoint(a.Upstream); err != nil {
		return fmt.Errorf("%s: %w", appField("Upstream"), err)
	}
	if !strings.HasPrefix(a.ShellDocument, "/") {
		return newFieldError(appField("ShellDocument"), "必须以 / 开头")
	}
	for _, p := range a.Precache {
		if !strings.HasPrefix(p, "/") {
			return newFieldError(appField("Precache"), fmt.Sprintf("路径必须以 / 开头: %s", p))
		}
	}
	for _, marker := range a.APIPathMarkers {
		if strings.TrimSpace(marker) == "" {
			return newFieldError(appField("APIPathMarkers"), "不允许空白标记")
		}
	}
	if a.ProbeEndpoint != "" {
		if err := validateEndpoint(a.ProbeEndpoint); err != nil {
			return fmt.Errorf("%s: %w", appField("ProbeEndpoint"), err)
		}
	}

	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
