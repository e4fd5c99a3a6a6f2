package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string        `yaml:"version"`
	Sqlite  SqliteConfig  `yaml:"sqlite"`
	Log     LogConfig     `yaml:"log"`
	Harness HarnessConfig `yaml:"harness"`
}

// SqliteConfig 运行记录数据库
type SqliteConfig struct {
	Dsn    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   string   `yaml:"file"`
}

// HarnessConfig 测试驱动配置
type HarnessConfig struct {
	Mode            string `yaml:"mode"`        // sim 或 cdp
	BaseURL         string `yaml:"baseURL"`     // 被测页面地址
	APIBase         string `yaml:"apiBase"`     // sim 模式的搜索接口地址，为空时启动本地桩
	DevToolsURL     string `yaml:"devToolsURL"` // cdp 模式下的浏览器调试地址
	WaitTimeoutMS   int    `yaml:"waitTimeoutMS"`
	AssertTimeoutMS int    `yaml:"assertTimeoutMS"`
	PollIntervalMS  int    `yaml:"pollIntervalMS"`
	FixturesDir     string `yaml:"fixturesDir"`
	InitialTerm     string `yaml:"initialTerm"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Sqlite: SqliteConfig{
			Dsn:    "storyharness.sqlite3",
			Prefix: "storyharness_",
		},
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"console"},
		},
		Harness: HarnessConfig{
			Mode:            "sim",
			BaseURL:         "http://localhost:3000/",
			APIBase:         "",
			DevToolsURL:     "http://127.0.0.1:9222",
			WaitTimeoutMS:   5000,
			AssertTimeoutMS: 4000,
			PollIntervalMS:  100,
			FixturesDir:     "fixtures",
			InitialTerm:     "React",
		},
	}
}

// Load 读取 yaml 配置并覆盖默认值；path 为空时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	switch c.Harness.Mode {
	case "sim", "cdp":
	default:
		errs = append(errs, fmt.Errorf("harness.mode must be sim or cdp, got %q", c.Harness.Mode))
	}
	if c.Harness.Mode == "cdp" && c.Harness.DevToolsURL == "" {
		errs = append(errs, errors.New("harness.devToolsURL is required in cdp mode"))
	}
	if c.Harness.WaitTimeoutMS <= 0 {
		errs = append(errs, errors.New("harness.waitTimeoutMS must be positive"))
	}
	if c.Harness.AssertTimeoutMS <= 0 {
		errs = append(errs, errors.New("harness.assertTimeoutMS must be positive"))
	}
	if c.Harness.PollIntervalMS <= 0 {
		errs = append(errs, errors.New("harness.pollIntervalMS must be positive"))
	}
	return errors.Join(errs...)
}

// WaitTimeout 等待标签交换的超时
func (h HarnessConfig) WaitTimeout() time.Duration {
	return time.Duration(h.WaitTimeoutMS) * time.Millisecond
}

// AssertTimeout 断言重试的超时
func (h HarnessConfig) AssertTimeout() time.Duration {
	return time.Duration(h.AssertTimeoutMS) * time.Millisecond
}

// PollInterval 断言重试间隔
func (h HarnessConfig) PollInterval() time.Duration {
	return time.Duration(h.PollIntervalMS) * time.Millisecond
}
