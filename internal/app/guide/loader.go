package guide

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"epg/internal/app/epg"
	"epg/internal/app/xmltv"
	"epg/internal/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrLoadSuperseded 加载被新的加载请求取代
	ErrLoadSuperseded = errors.New("guide load superseded by a newer one")
	// ErrGuideCleared 加载过程中索引被清空
	ErrGuideCleared = errors.New("guide load aborted by clear")
)

// Options 加载选项
type Options struct {
	MaxSizeBytes  int64             // 文档大小上限
	DefaultOffset xmltv.Offset      // 时间未携带时区偏移时使用的默认偏移
	HTTPTimeout   time.Duration     // 请求远程节目单的超时时间
	Headers       map[string]string // 请求远程节目单时携带的请求头
	ChExcludeRule *regexp.Regexp    // 频道的过滤规则，匹配频道名称
	Concurrency   int               // 并发构建频道快照的数量，<=0时使用CPU核数
}

// LoadResult 加载结果
type LoadResult struct {
	Source          string                   `json:"source"`
	ChannelCount    int                      `json:"channelCount"`
	ProgramCount    int                      `json:"programCount"`
	Skipped         int                      `json:"skipped"`
	SkippedByReason map[xmltv.SkipReason]int `json:"skippedByReason"`
	Excluded        int                      `json:"excluded"`
	Removed         int                      `json:"removed"`
	Truncated       bool                     `json:"truncated"`
	Elapsed         time.Duration            `json:"elapsed"`
	LoadedAt        time.Time                `json:"loadedAt"`
}

// Loader 加载节目单文档并发布到索引中，是Store唯一的写者
type Loader struct {
	store      *epg.Store
	opts       Options
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	seq    uint64

	writeMu sync.Mutex
	last    atomic.Pointer[LoadResult]
}

func NewLoader(store *epg.Store, opts Options, m *metrics.Metrics) *Loader {
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = xmltv.DefaultMaxSizeBytes
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 60 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}

	return &Loader{
		store: store,
		opts:  opts,
		httpClient: &http.Client{
			Timeout: opts.HTTPTimeout,
		},
		metrics: m,
		logger:  zap.L(),
	}
}

// Store 加载器写入的索引
func (l *Loader) Store() *epg.Store {
	return l.store
}

// LastResult 最近一次成功加载的结果，尚未加载或已清空时返回nil
func (l *Loader) LastResult() *LoadResult {
	return l.last.Load()
}

// Load 加载节目单文档，并整体替换每个频道的节目单。
// 新的加载会取消正在进行的加载，被取消的加载不会写入索引。
func (l *Loader) Load(ctx context.Context, source string) (*LoadResult, error) {
	ctx, done := l.begin(ctx)
	defer done()

	result, err := l.load(ctx, source, time.Now())
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
			err = cause
		}
		l.observeFailure(err)
		l.logger.Error("Failed to load the guide.", zap.String("source", source), zap.Error(err))
		return nil, err
	}
	l.observeSuccess(result)

	l.logger.Sugar().Infof("The guide has been loaded from %s, channels: %d, programs: %d, skipped: %d, elapsed: %s.",
		source, result.ChannelCount, result.ProgramCount, result.Skipped, result.Elapsed)
	return result, nil
}

// Clear 取消正在进行的加载并清空索引。
// 与发布共用写锁，正在发布的加载完成后才会清空，索引不会停留在部分发布的状态。
func (l *Loader) Clear() {
	l.abort(ErrGuideCleared)

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.store.Clear()
	l.last.Store(nil)
	if l.metrics != nil {
		l.metrics.Channels.Set(0)
	}
	l.logger.Info("The guide has been cleared.")
}

// abort 以cause取消正在进行的加载
func (l *Loader) abort(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel(cause)
	}
}

// begin 取消正在进行的加载并创建新的上下文
func (l *Loader) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel(ErrLoadSuperseded)
	}
	l.seq++
	seq := l.seq
	l.cancel = cancel
	l.mu.Unlock()

	return ctx, func() {
		l.mu.Lock()
		if l.seq == seq {
			l.cancel = nil
		}
		l.mu.Unlock()
		cancel(context.Canceled)
	}
}

func (l *Loader) load(ctx context.Context, source string, begin time.Time) (*LoadResult, error) {
	// 读取文档，解析之前进行大小校验
	doc, err := l.fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	ingested, err := xmltv.Ingest(ctx, doc, xmltv.Options{
		MaxSizeBytes:  l.opts.MaxSizeBytes,
		DefaultOffset: l.opts.DefaultOffset,
	})
	if err != nil {
		return nil, err
	}

	result := &LoadResult{
		Source:          source,
		ChannelCount:    ingested.ChannelCount,
		ProgramCount:    ingested.ProgramCount,
		Skipped:         ingested.Skipped,
		SkippedByReason: ingested.SkippedByReason,
		Truncated:       ingested.Truncated,
	}

	// 在锁外并发构建所有频道的快照
	infos, excluded := l.channelInfos(ingested)
	result.Excluded = excluded
	snapshots, err := l.build(ctx, infos, ingested.Programs)
	if err != nil {
		return nil, err
	}

	// 单一写者发布快照
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	loaded := make(map[string]struct{}, len(infos))
	for i, info := range infos {
		l.store.Publish(snapshots[i], info)
		loaded[info.ID] = struct{}{}
	}

	// 移除新文档中已不存在的频道
	for _, channelID := range l.store.GetChannelIDs() {
		if _, ok := loaded[channelID]; !ok && l.store.RemoveChannel(channelID) {
			result.Removed++
		}
	}

	// 加载结果与索引在同一把写锁内更新
	result.Elapsed = time.Since(begin)
	result.LoadedAt = time.Now()
	l.last.Store(result)
	if l.metrics != nil {
		l.metrics.Channels.Set(float64(l.store.Stats().Channels))
	}
	return result, nil
}

// channelInfos 合并文档中声明的频道及仅被节目引用的频道，并过滤掉匹配排除规则的频道
func (l *Loader) channelInfos(ingested *xmltv.Result) ([]epg.Channel, int) {
	infos := make([]epg.Channel, 0, len(ingested.Channels))
	declared := make(map[string]struct{}, len(ingested.Channels))
	for _, channel := range ingested.Channels {
		declared[channel.ID] = struct{}{}
		infos = append(infos, channel)
	}

	referenced := make([]string, 0)
	for channelID := range ingested.Programs {
		if _, ok := declared[channelID]; !ok {
			referenced = append(referenced, channelID)
		}
	}
	slices.Sort(referenced)
	for _, channelID := range referenced {
		infos = append(infos, epg.Channel{ID: channelID, DisplayName: channelID})
	}

	if l.opts.ChExcludeRule == nil {
		return infos, 0
	}
	kept := infos[:0]
	excluded := 0
	for _, info := range infos {
		if l.opts.ChExcludeRule.MatchString(info.DisplayName) {
			excluded++
			continue
		}
		kept = append(kept, info)
	}
	return kept, excluded
}

// build 并发构建频道快照
func (l *Loader) build(ctx context.Context, infos []epg.Channel, programs map[string][]epg.Program) ([]*epg.ChannelPrograms, error) {
	snapshots := make([]*epg.ChannelPrograms, len(infos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snapshots[i] = epg.BuildChannelPrograms(info.ID, programs[info.ID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (l *Loader) observeSuccess(result *LoadResult) {
	if l.metrics == nil {
		return
	}
	l.metrics.LoadsTotal.WithLabelValues("success").Inc()
	l.metrics.LoadDuration.Observe(result.Elapsed.Seconds())
	l.metrics.ProgramsIngested.Set(float64(result.ProgramCount))
	for reason, count := range result.SkippedByReason {
		l.metrics.ProgramsSkipped.WithLabelValues(string(reason)).Add(float64(count))
	}
}

func (l *Loader) observeFailure(err error) {
	if l.metrics == nil {
		return
	}
	l.metrics.LoadsTotal.WithLabelValues(FailureStatus(err)).Inc()
}

// FailureStatus 加载失败的分类
func FailureStatus(err error) string {
	switch {
	case errors.Is(err, xmltv.ErrDocumentTooLarge):
		return "too_large"
	case errors.Is(err, xmltv.ErrMalformedDocument):
		return "malformed"
	case errors.Is(err, ErrLoadSuperseded), errors.Is(err, ErrGuideCleared), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
