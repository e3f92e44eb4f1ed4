package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，网关进程共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	ProbeTimeout    Duration `mapstructure:"ProbeTimeout"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
}

// AppConfig 描述被代理应用的部署信息：版本号、上游源站与缓存分类规则。
type AppConfig struct {
	Version        string   `mapstructure:"Version"`
	Upstream       string   `mapstructure:"Upstream"`
	ShellDocument  string   `mapstructure:"ShellDocument"`
	Precache       []string `mapstructure:"Precache"`
	APIPathMarkers []string `mapstructure:"APIPathMarkers"`
	DataHosts      []string `mapstructure:"DataHosts"`
	ProbeEndpoint  string   `mapstructure:"ProbeEndpoint"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	App    AppConfig    `mapstructure:"App"`
}

// StaticPartition 返回当前版本静态分区的完整名称。
func (a AppConfig) StaticPartition() string {
	return "static-assets@" + a.Version
}

// APIPartition 返回当前版本 API 数据分区的完整名称。
func (a AppConfig) APIPartition() string {
	return "api-data@" + a.Version
}

// CurrentPartitions 返回当前版本应当保留的分区名集合，供激活期 GC 使用。
func (a AppConfig) CurrentPartitions() []string {
	return []string{a.StaticPartition(), a.APIPartition()}
}

// EffectiveProbeEndpoint 返回探测地址，未配置时退回上游 Shell 文档。
func (a AppConfig) EffectiveProbeEndpoint() string {
	if a.ProbeEndpoint != "" {
		return a.ProbeEndpoint
	}
	return strings.TrimSuffix(a.Upstream, "/") + a.ShellDocument
}
