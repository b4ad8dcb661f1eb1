package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"epg/internal/app/epg"
	"epg/internal/app/xmltv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestCreateDefaultCfg(t *testing.T) {
	fPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, CreateDefaultCfg(fPath))

	conf, err := Load(fPath)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, "epg.xml", conf.Guide.Source)
	assert.Equal(t, xmltv.Offset(540), conf.Guide.Offset)
	assert.Equal(t, 24*time.Hour, conf.Guide.Interval)
	assert.Equal(t, zapcore.InfoLevel, conf.Log.Level)
	require.NotNil(t, conf.Guide.ChExcludeRule)
	assert.True(t, conf.Guide.ChExcludeRule.MatchString("NHK-test"))
	assert.False(t, conf.Guide.ChExcludeRule.MatchString("NHK"))
}

func TestLoad(t *testing.T) {
	fPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(fPath, []byte(`
guide:
  source: https://example.com/epg.xml.gz
  defaultOffset: "-0500"
  interval: 30m
  watch: true
  headers:
    User-Agent: test
  reloadSources:
    - https://example.com/backup.xml.gz
search:
  defaultLimit: 20
log:
  level: debug
`), 0o644))

	conf, err := Load(fPath)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, "https://example.com/epg.xml.gz", conf.Guide.Source)
	assert.Equal(t, xmltv.Offset(-300), conf.Guide.Offset)
	assert.Equal(t, 30*time.Minute, conf.Guide.Interval)
	assert.True(t, conf.Guide.Watch)
	assert.Equal(t, map[string]string{"User-Agent": "test"}, conf.Guide.Headers)
	assert.Equal(t, []string{"https://example.com/backup.xml.gz"}, conf.Guide.ReloadSources)
	assert.Equal(t, zapcore.DebugLevel, conf.Log.Level)

	// 缺省值
	assert.Equal(t, xmltv.DefaultMaxSizeBytes, conf.Guide.MaxSizeBytes)
	assert.Equal(t, defaultHttpTimeout, conf.Guide.HttpTimeout)
	assert.Equal(t, 20, conf.Search.DefaultLimit)
	assert.Equal(t, defaultMaxLimit, conf.Search.MaxLimit)
	assert.Nil(t, conf.Guide.ChExcludeRule)
}

func TestValidate(t *testing.T) {
	t.Run("empty config", func(t *testing.T) {
		conf := &Config{}
		require.NoError(t, conf.Validate())
		assert.Equal(t, xmltv.Offset(0), conf.Guide.Offset)
		assert.Equal(t, epg.DefaultSearchLimit, conf.Search.DefaultLimit)
	})

	t.Run("interval too short", func(t *testing.T) {
		conf := &Config{Guide: GuideConfig{Interval: time.Minute}}
		assert.Error(t, conf.Validate())
	})

	t.Run("invalid offset", func(t *testing.T) {
		conf := &Config{Guide: GuideConfig{DefaultOffset: "JST"}}
		err := conf.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, xmltv.ErrTimestampFormat)
	})

	t.Run("invalid exclude rule is skipped", func(t *testing.T) {
		conf := &Config{Guide: GuideConfig{OptionChExcludeRule: "("}}
		require.NoError(t, conf.Validate())
		assert.Nil(t, conf.Guide.ChExcludeRule)
	})

	t.Run("default limit capped", func(t *testing.T) {
		conf := &Config{Search: SearchConfig{DefaultLimit: 100, MaxLimit: 10}}
		require.NoError(t, conf.Validate())
		assert.Equal(t, 10, conf.Search.DefaultLimit)
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
