package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"epg/internal/app/epg"
	"epg/internal/app/xmltv"
	"epg/internal/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	defaultInterval    = 24 * time.Hour
	minInterval        = 15 * time.Minute
	defaultHttpTimeout = 60 * time.Second
	defaultMaxLimit    = 500
)

type GuideConfig struct {
	Source        string            `json:"source" yaml:"source"`               // 节目单来源，本地文件路径或HTTP地址，支持gzip压缩
	MaxSizeBytes  int64             `json:"maxSizeBytes" yaml:"maxSizeBytes"`   // 节目单文档大小上限，默认200MiB
	DefaultOffset string            `json:"defaultOffset" yaml:"defaultOffset"` // 节目时间未携带时区时使用的偏移，例如：+0900
	Interval      time.Duration     `json:"interval" yaml:"interval"`           // 自动重新加载的间隔时间，e.g `24h或15m`
	Watch         bool              `json:"watch" yaml:"watch"`                 // 本地文件变更后是否自动重新加载
	HttpTimeout   time.Duration     `json:"httpTimeout" yaml:"httpTimeout"`     // 请求远程节目单的超时时间
	Headers       map[string]string `json:"headers" yaml:"headers"`             // 请求远程节目单时的自定义HTTP请求头
	ReloadSources []string          `json:"reloadSources" yaml:"reloadSources"` // 除source外，重新加载接口允许使用的来源

	OptionChExcludeRule string         `json:"chExcludeRule" yaml:"chExcludeRule"` // 频道的过滤规则，匹配频道名称
	ChExcludeRule       *regexp.Regexp `json:"-" yaml:"-"`                         // Validate()时进行填充
	Offset              xmltv.Offset   `json:"-" yaml:"-"`                         // Validate()时进行填充
}

type SearchConfig struct {
	DefaultLimit int `json:"defaultLimit" yaml:"defaultLimit"` // 未指定limit时返回的条数
	MaxLimit     int `json:"maxLimit" yaml:"maxLimit"`         // limit的最大值
}

type Config struct {
	Guide  GuideConfig       `json:"guide" yaml:"guide"`
	Search SearchConfig      `json:"search" yaml:"search"`
	Log    logging.LogConfig `json:"log" yaml:"log"`
}

func (c *Config) Validate() error {
	// L()：获取全局logger
	logger := zap.L()

	// 填充缺省值
	if c.Guide.MaxSizeBytes <= 0 {
		c.Guide.MaxSizeBytes = xmltv.DefaultMaxSizeBytes
	}
	if c.Guide.Interval <= 0 {
		c.Guide.Interval = defaultInterval
	} else if c.Guide.Interval < minInterval {
		return errors.New("interval cannot be less than 15 minutes")
	}
	if c.Guide.HttpTimeout <= 0 {
		c.Guide.HttpTimeout = defaultHttpTimeout
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = epg.DefaultSearchLimit
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = defaultMaxLimit
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		c.Search.DefaultLimit = c.Search.MaxLimit
	}

	// 解析默认时区偏移，未配置时按UTC处理
	if c.Guide.DefaultOffset == "" {
		logger.Warn("The default offset of the guide is not configured, UTC is assumed.")
		c.Guide.Offset = 0
	} else {
		offset, err := xmltv.ParseOffset(c.Guide.DefaultOffset)
		if err != nil {
			return fmt.Errorf("invalid defaultOffset: %w", err)
		}
		c.Guide.Offset = offset
	}

	// 填充频道的过滤规则
	c.Guide.ChExcludeRule = nil
	if c.Guide.OptionChExcludeRule != "" {
		rule, err := regexp.Compile(c.Guide.OptionChExcludeRule)
		if err != nil {
			logger.Warn("The channel exclusion rule is incorrect. Skip it.", zap.String("chExcludeRule", c.Guide.OptionChExcludeRule), zap.Error(err))
		} else {
			c.Guide.ChExcludeRule = rule
		}
	}

	return nil
}

func Load(fPath string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(fPath)
	if err != nil {
		return nil, err
	}
	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig 缺省配置
func DefaultConfig() *Config {
	return &Config{
		Guide: GuideConfig{
			Source:        "epg.xml",
			MaxSizeBytes:  xmltv.DefaultMaxSizeBytes,
			DefaultOffset: "+0900",
			Interval:      defaultInterval,
			HttpTimeout:   defaultHttpTimeout,
			Headers: map[string]string{
				"Accept":     "application/xml,text/xml;q=0.9,*/*;q=0.8",
				"User-Agent": "epg/1.0",
			},
			OptionChExcludeRule: "^.+?(テスト|-test)$",
		},
		Search: SearchConfig{
			DefaultLimit: epg.DefaultSearchLimit,
			MaxLimit:     defaultMaxLimit,
		},
		Log: logging.LogConfig{
			Level:      zapcore.InfoLevel,
			Encoding:   logging.EncodingJSON,
			FileName:   "logs/epg.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			IsStdout:   true,
		},
	}
}

func CreateDefaultCfg(fPath string) error {
	// 写入默认配置
	f, err := os.Create(fPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// 创建编码器
	encoder := yaml.NewEncoder(f)
	defer encoder.Close()

	return encoder.Encode(DefaultConfig())
}
