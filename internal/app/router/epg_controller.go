package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"epg/internal/app/config"
	"epg/internal/app/epg"
	"epg/internal/app/guide"
	"epg/internal/app/xmltv"
	"epg/internal/pkg/metrics"
	"epg/internal/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	xmltvGzipFilename = "epg.xml.gz"

	// 节目表默认查询的时间窗口
	defaultGridWindow = 3 * time.Hour
)

// EPGController 节目单查询接口，只通过Store的只读接口查询，写操作交给Loader
type EPGController struct {
	ctx     context.Context // 服务的生命周期，重新加载不随请求取消
	store   *epg.Store
	loader  *guide.Loader
	metrics *metrics.Metrics

	source        string
	reloadSources map[string]struct{} // 允许重新加载的来源
	offset        xmltv.Offset
	defaultLimit  int
	maxLimit      int
}

func NewEPGController(ctx context.Context, loader *guide.Loader, conf *config.Config, m *metrics.Metrics) *EPGController {
	reloadSources := make(map[string]struct{}, len(conf.Guide.ReloadSources)+1)
	if conf.Guide.Source != "" {
		reloadSources[conf.Guide.Source] = struct{}{}
	}
	for _, source := range conf.Guide.ReloadSources {
		reloadSources[source] = struct{}{}
	}

	return &EPGController{
		ctx:           ctx,
		store:         loader.Store(),
		loader:        loader,
		metrics:       m,
		source:        conf.Guide.Source,
		reloadSources: reloadSources,
		offset:        conf.Guide.Offset,
		defaultLimit:  conf.Search.DefaultLimit,
		maxLimit:      conf.Search.MaxLimit,
	}
}

// ChannelInfo 频道信息及节目单时间范围
type ChannelInfo struct {
	epg.Channel
	TimeRange *epg.TimeRange `json:"timeRange"`
}

// ProgramResp 单个节目的查询结果
type ProgramResp struct {
	ChannelID string       `json:"channelId"`
	Program   *epg.Program `json:"program"`
}

// GetChannels 查询频道列表
func (e *EPGController) GetChannels(c *gin.Context) {
	channels := e.store.GetChannels()
	result := make([]ChannelInfo, 0, len(channels))
	for _, channel := range channels {
		result = append(result, ChannelInfo{
			Channel:   channel,
			TimeRange: e.store.GetChannelTimeRange(channel.ID),
		})
	}
	c.PureJSON(http.StatusOK, result)
}

// GetNow 查询频道正在播出的节目
func (e *EPGController) GetNow(c *gin.Context) {
	chId, at, ok := e.channelAndTime(c)
	if !ok {
		return
	}
	c.PureJSON(http.StatusOK, &ProgramResp{
		ChannelID: chId,
		Program:   e.store.GetNow(chId, at),
	})
}

// GetNext 查询频道的下一个节目
func (e *EPGController) GetNext(c *gin.Context) {
	chId, at, ok := e.channelAndTime(c)
	if !ok {
		return
	}
	c.PureJSON(http.StatusOK, &ProgramResp{
		ChannelID: chId,
		Program:   e.store.GetNext(chId, at),
	})
}

// GetNowNext 批量查询多个频道的当前及下一个节目，未指定频道时查询全部频道
func (e *EPGController) GetNowNext(c *gin.Context) {
	at, err := util.ParseMillis(c.Query("time"), util.NowMillis())
	if err != nil {
		logger.Warn("Time format error.", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	c.PureJSON(http.StatusOK, e.store.GetNowNext(e.channelIDs(c), at))
}

// GetRange 查询频道在[start, end)内的节目
func (e *EPGController) GetRange(c *gin.Context) {
	chId := c.Query("ch")
	if chId == "" {
		logger.Warn("The id of the channel is null.")
		c.Status(http.StatusBadRequest)
		return
	}
	start, end, ok := e.timeRange(c, true)
	if !ok {
		return
	}
	c.PureJSON(http.StatusOK, e.store.GetProgramsInRange(chId, start, end))
}

// GetGrid 批量查询多个频道在时间窗口内的节目单，默认为当前时间起3小时
func (e *EPGController) GetGrid(c *gin.Context) {
	start, end, ok := e.timeRange(c, false)
	if !ok {
		return
	}
	c.PureJSON(http.StatusOK, e.store.GetGuideWindow(e.channelIDs(c), start, end))
}

// Search 搜索节目
func (e *EPGController) Search(c *gin.Context) {
	query := c.Query("q")

	limit := e.defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		var err error
		if limit, err = strconv.Atoi(limitStr); err != nil || limit <= 0 {
			logger.Warn("Limit format error.", zap.String("limit", limitStr))
			c.Status(http.StatusBadRequest)
			return
		}
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	// 可选的时间范围
	var tr *epg.TimeRange
	if c.Query("start") != "" || c.Query("end") != "" {
		start, end, ok := e.timeRange(c, true)
		if !ok {
			return
		}
		tr = &epg.TimeRange{Start: start, End: end}
	}

	begin := time.Now()
	results := e.store.SearchPrograms(query, tr, limit)
	if e.metrics != nil {
		e.metrics.SearchDuration.Observe(time.Since(begin).Seconds())
		e.metrics.SearchResults.Observe(float64(len(results)))
	}

	c.PureJSON(http.StatusOK, results)
}

// ChannelDateJsonEPG 频道的JSON格式EPG
type ChannelDateJsonEPG struct {
	ChannelName string    `json:"channel_name"`
	Date        string    `json:"date"`
	EPGData     []JsonEPG `json:"epg_data"`
}

// JsonEPG JSON格式EPG
type JsonEPG struct {
	Title string `json:"title"` // 标题
	Desc  string `json:"desc"`  // 描述
	Start string `json:"start"` // 开始时间
	End   string `json:"end"`   // 结束时间
}

// GetJsonEPG 获取JSON格式的EPG，ch可以是频道ID或频道名称
func (e *EPGController) GetJsonEPG(c *gin.Context) {
	loc := e.offset.Location()

	// 获取频道名称
	chName := c.Query("ch")
	// 获取日期
	dateStr := c.DefaultQuery("date", time.Now().In(loc).Format("2006-01-02"))

	// 校验频道名称是否为空
	if chName == "" {
		logger.Warn("The name of the channel is null.")
		// 返回响应
		c.Status(http.StatusBadRequest)
		return
	}

	// 解析日期
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		logger.Error("Date format error", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	// 根据频道ID或名称找到频道
	chId := e.findChannel(chName)
	if chId == "" {
		c.PureJSON(http.StatusOK, &ChannelDateJsonEPG{
			ChannelName: chName,
			Date:        dateStr,
			EPGData:     []JsonEPG{},
		})
		return
	}

	// 查询该频道指定日期的节目单列表
	dayStart := date.UnixMilli()
	dayEnd := date.AddDate(0, 0, 1).UnixMilli()
	programs := e.store.GetProgramsInRange(chId, dayStart, dayEnd)
	dateEPGData := make([]JsonEPG, 0, len(programs))
	for _, program := range programs {
		endTime := time.UnixMilli(program.End).In(loc)
		endTimeStr := endTime.Format("15:04")
		if program.End >= dayEnd {
			// 临界值特殊处理
			endTimeStr = "23:59"
		}
		dateEPGData = append(dateEPGData, JsonEPG{
			Title: program.Title,
			Desc:  program.Description,
			Start: time.UnixMilli(program.Start).In(loc).Format("15:04"),
			End:   endTimeStr,
		})
	}

	// 返回最终响应
	c.PureJSON(http.StatusOK, &ChannelDateJsonEPG{
		ChannelName: e.store.GetChannelName(chId),
		Date:        dateStr,
		EPGData:     dateEPGData,
	})
}

// GetXmlEPG 返回XMLTV格式的EPG
func (e *EPGController) GetXmlEPG(c *gin.Context) {
	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Status(http.StatusOK)
	if err := xmltv.Write(c.Writer, xmltv.FromStore(e.store, e.offset, e.backTime(c))); err != nil {
		logger.Error("Failed to write xml data.", zap.Error(err))
	}
}

// GetXmlEPGWithGzip 返回gzip压缩的XMLTV格式的EPG
func (e *EPGController) GetXmlEPGWithGzip(c *gin.Context) {
	// 设置HTTP头，通知浏览器这是一个二进制流文件
	c.Header("Content-Type", "application/octet-stream")                                       // 说明是二进制文件
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", xmltvGzipFilename)) // 指定下载文件名
	c.Status(http.StatusOK)

	if err := xmltv.WriteGzip(c.Writer, xmltv.FromStore(e.store, e.offset, e.backTime(c))); err != nil {
		logger.Error("Failed to write gzip xml data.", zap.Error(err))
	}
}

// StatsResp 索引统计信息
type StatsResp struct {
	epg.Stats
	LastLoad *guide.LoadResult `json:"lastLoad"`
}

// GetStats 查询索引统计信息及最近一次加载结果
func (e *EPGController) GetStats(c *gin.Context) {
	c.PureJSON(http.StatusOK, &StatsResp{
		Stats:    e.store.Stats(),
		LastLoad: e.loader.LastResult(),
	})
}

// Reload 重新加载节目单，source参数只能是配置的来源或reloadSources中的来源
func (e *EPGController) Reload(c *gin.Context) {
	source := c.DefaultQuery("source", e.source)
	if source == "" {
		logger.Warn("The source of the guide is null.")
		c.Status(http.StatusBadRequest)
		return
	}
	if _, ok := e.reloadSources[source]; !ok {
		logger.Warn("The source of the guide is not allowed.", zap.String("source", source))
		c.PureJSON(http.StatusBadRequest, gin.H{"error": "source not allowed"})
		return
	}

	result, err := e.loader.Load(e.ctx, source)
	if err != nil {
		c.PureJSON(loadErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.PureJSON(http.StatusOK, result)
}

// Clear 取消正在进行的加载并清空索引
func (e *EPGController) Clear(c *gin.Context) {
	e.loader.Clear()
	c.Status(http.StatusNoContent)
}

// channelAndTime 解析ch及time参数，time缺省为当前时间
func (e *EPGController) channelAndTime(c *gin.Context) (string, int64, bool) {
	chId := c.Query("ch")
	if chId == "" {
		logger.Warn("The id of the channel is null.")
		c.Status(http.StatusBadRequest)
		return "", 0, false
	}

	at, err := util.ParseMillis(c.Query("time"), util.NowMillis())
	if err != nil {
		logger.Warn("Time format error.", zap.String("time", c.Query("time")), zap.Error(err))
		c.Status(http.StatusBadRequest)
		return "", 0, false
	}
	return chId, at, true
}

// timeRange 解析start及end参数；required为false时缺省为当前时间起的默认窗口
func (e *EPGController) timeRange(c *gin.Context, required bool) (int64, int64, bool) {
	startStr, endStr := c.Query("start"), c.Query("end")
	if required && (startStr == "" || endStr == "") {
		logger.Warn("The time range is incomplete.", zap.String("start", startStr), zap.String("end", endStr))
		c.Status(http.StatusBadRequest)
		return 0, 0, false
	}

	start, err := util.ParseMillis(startStr, util.NowMillis())
	if err != nil {
		logger.Warn("Start time format error.", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return 0, 0, false
	}
	end, err := util.ParseMillis(endStr, start+defaultGridWindow.Milliseconds())
	if err != nil {
		logger.Warn("End time format error.", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return 0, 0, false
	}
	if start >= end {
		logger.Warn("The start time must be earlier than the end time.", zap.Int64("start", start), zap.Int64("end", end))
		c.Status(http.StatusBadRequest)
		return 0, 0, false
	}
	return start, end, true
}

// channelIDs 解析逗号分隔的ch参数，为空时返回全部频道
func (e *EPGController) channelIDs(c *gin.Context) []string {
	chStr := c.Query("ch")
	if chStr == "" {
		return e.store.GetChannelIDs()
	}

	ids := make([]string, 0)
	for _, id := range strings.Split(chStr, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// findChannel 根据频道ID或频道名称查找频道ID
func (e *EPGController) findChannel(chName string) string {
	if e.store.HasChannel(chName) {
		return chName
	}
	for _, channel := range e.store.GetChannels() {
		if channel.DisplayName == chName {
			return channel.ID
		}
	}
	return ""
}

// backTime 保留过去几天的节目单，backDay<=0时不过滤
func (e *EPGController) backTime(c *gin.Context) int64 {
	backDay, err := strconv.Atoi(c.Query("backDay"))
	if err != nil || backDay <= 0 {
		return 0
	}

	backTime := time.Now().In(e.offset.Location()).AddDate(0, 0, -backDay)
	backTime = time.Date(backTime.Year(), backTime.Month(), backTime.Day(), 0, 0, 0, 0, backTime.Location())
	return backTime.UnixMilli()
}

// loadErrorStatus 加载失败对应的HTTP状态码
func loadErrorStatus(err error) int {
	switch {
	case errors.Is(err, xmltv.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, xmltv.ErrMalformedDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, guide.ErrLoadSuperseded), errors.Is(err, guide.ErrGuideCleared), errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
