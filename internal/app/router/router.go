package router

import (
	"context"
	"errors"
	"time"

	"epg/internal/app/config"
	"epg/internal/app/guide"
	"epg/internal/app/xmltv"
	"epg/internal/pkg/metrics"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	waitSeconds = 30
	maxRetries  = 3
)

var logger = zap.NewNop()

// NewEngine 加载节目单、启动定时任务，并创建HTTP路由
func NewEngine(ctx context.Context, conf *config.Config, loader *guide.Loader, m *metrics.Metrics) (*gin.Engine, error) {
	// L()：获取全局logger
	logger = zap.L()

	gin.SetMode(gin.ReleaseMode)

	source := conf.Guide.Source
	if source == "" {
		return nil, errors.New("the source of the guide is empty")
	}

	// 执行初始化操作
	if err := loadWithRetry(ctx, loader, source, maxRetries); err != nil {
		return nil, err
	}

	// 执行定时任务
	Schedule(ctx, loader, source, conf.Guide.Interval)

	// 监听本地节目单文件
	if conf.Guide.Watch && !guide.IsRemote(source) {
		if err := guide.Watch(ctx, loader, source, guide.DefaultDebounce); err != nil {
			logger.Warn("Failed to watch the guide file.", zap.String("source", source), zap.Error(err))
		}
	}

	return newRouter(NewEPGController(ctx, loader, conf, m), m), nil
}

// newRouter 创建 Gin 路由引擎并注册接口
func newRouter(ctrl *EPGController, m *metrics.Metrics) *gin.Engine {
	r := gin.New()

	// 日志记录
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	// 频道列表
	r.GET("/epg/channels", ctrl.GetChannels)
	// 当前及下一个节目
	r.GET("/epg/now", ctrl.GetNow)
	r.GET("/epg/next", ctrl.GetNext)
	r.GET("/epg/nownext", ctrl.GetNowNext)
	// 时间范围内的节目单
	r.GET("/epg/range", ctrl.GetRange)
	r.GET("/epg/grid", ctrl.GetGrid)
	// 搜索节目
	r.GET("/epg/search", ctrl.Search)
	// 查询EPG-json格式
	r.GET("/epg/json", ctrl.GetJsonEPG)
	// 查询EPG-xml格式
	r.GET("/epg/xml", ctrl.GetXmlEPG)
	r.GET("/epg/xml.gz", ctrl.GetXmlEPGWithGzip)
	// 索引统计及管理
	r.GET("/epg/stats", ctrl.GetStats)
	r.POST("/epg/reload", ctrl.Reload)
	r.DELETE("/epg", ctrl.Clear)

	// Prometheus指标
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return r
}

// loadWithRetry 加载节目单（失败重试），文档过大或格式错误时不重试
func loadWithRetry(ctx context.Context, loader *guide.Loader, source string, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if _, err = loader.Load(ctx, source); err == nil {
			return nil
		}
		if errors.Is(err, xmltv.ErrDocumentTooLarge) || errors.Is(err, xmltv.ErrMalformedDocument) {
			return err
		}

		logger.Sugar().Errorf("Failed to load the guide, will try again after waiting %d seconds. Error: %v, number of retries: %d.", waitSeconds, err, i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitSeconds * time.Second):
		}
	}
	return err
}
