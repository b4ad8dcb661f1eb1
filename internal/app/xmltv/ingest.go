package xmltv

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"epg/internal/app/epg"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultMaxSizeBytes 文档大小上限，防止内存耗尽
	DefaultMaxSizeBytes int64 = 200 << 20

	// DefaultTitle 节目缺少标题时使用的名称
	DefaultTitle = "Unknown Program"

	// 每解析多少个节点检查一次是否已取消
	cancelCheckInterval = 1024
)

// SkipReason 节目被跳过的原因
type SkipReason string

const (
	SkipMissingChannel  SkipReason = "missing_channel"
	SkipInvalidStart    SkipReason = "invalid_start"
	SkipInvalidStop     SkipReason = "invalid_stop"
	SkipInvalidInterval SkipReason = "invalid_interval"
)

// Options 解析选项
type Options struct {
	MaxSizeBytes  int64  // 文档大小上限，<=0时使用DefaultMaxSizeBytes
	DefaultOffset Offset // 时间未携带时区偏移时使用的默认偏移
}

func (o Options) maxSize() int64 {
	if o.MaxSizeBytes <= 0 {
		return DefaultMaxSizeBytes
	}
	return o.MaxSizeBytes
}

// Result 解析结果
type Result struct {
	Channels        []epg.Channel            // 文档中声明的频道（按出现顺序）
	Programs        map[string][]epg.Program // 频道ID -> 按开始时间升序排列的节目
	ChannelCount    int                      // 成功解析的频道数
	ProgramCount    int                      // 成功解析的节目数
	Skipped         int                      // 被跳过的节目数
	SkippedByReason map[SkipReason]int       // 按原因统计的跳过数
	Elapsed         time.Duration            // 处理耗时
	Truncated       bool                     // 文档在<tv>根节点之后出现语法错误，仅保留已解析的部分
}

// ReadAll 读取文档内容，超过limit时返回DocumentTooLargeError，不会读入超过limit+1字节
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxSizeBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &DocumentTooLargeError{Size: -1, Limit: limit}
	}
	return data, nil
}

// Ingest 解析XMLTV文档，单个频道或节目的错误不会导致整个文档解析失败
func Ingest(ctx context.Context, doc []byte, opts Options) (*Result, error) {
	begin := time.Now()

	// 解析之前检查文档大小
	if limit := opts.maxSize(); int64(len(doc)) > limit {
		return nil, &DocumentTooLargeError{Size: int64(len(doc)), Limit: limit}
	}

	decoder := newDecoder(bytes.NewReader(doc))
	if err := findRoot(decoder); err != nil {
		return nil, err
	}

	in := &ingester{
		logger:        zap.L(),
		defaultOffset: opts.DefaultOffset,
		seenChannels:  make(map[string]struct{}),
		result: &Result{
			Channels:        make([]epg.Channel, 0),
			Programs:        make(map[string][]epg.Program),
			SkippedByReason: make(map[SkipReason]int),
		},
	}

	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			in.truncate(err)
			break
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			if ee, ok := token.(xml.EndElement); ok && ee.Name.Local == "tv" {
				break
			}
			continue
		}

		switch se.Name.Local {
		case "channel":
			var ch XmlChannel
			if err = decoder.DecodeElement(&ch, &se); err != nil {
				in.truncate(err)
				break
			}
			in.addChannel(&ch)
		case "programme":
			var prog XmlProgramme
			if err = decoder.DecodeElement(&prog, &se); err != nil {
				in.truncate(err)
				break
			}
			in.addProgramme(&prog)
		default:
			// 忽略未知节点及其子节点
			if err = decoder.Skip(); err != nil {
				in.truncate(err)
			}
		}
		if in.result.Truncated {
			break
		}
	}

	result := in.result
	// 对每个频道的节目按开始时间升序排序
	for _, programs := range result.Programs {
		slices.SortStableFunc(programs, func(a, b epg.Program) int {
			switch {
			case a.Start < b.Start:
				return -1
			case a.Start > b.Start:
				return 1
			}
			return 0
		})
	}
	result.Elapsed = time.Since(begin)
	return result, nil
}

// newDecoder 创建宽松模式的XML解码器，支持非UTF-8编码及HTML实体
func newDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charset.NewReaderLabel
	return decoder
}

// findRoot 定位<tv>根节点
func findRoot(decoder *xml.Decoder) error {
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return &MalformedDocumentError{Reason: "no root element"}
		} else if err != nil {
			return &MalformedDocumentError{Reason: "unreadable root element", Err: err}
		}

		if se, ok := token.(xml.StartElement); ok {
			if se.Name.Local != "tv" {
				return &MalformedDocumentError{Reason: "unexpected root element <" + se.Name.Local + ">"}
			}
			return nil
		}
	}
}

type ingester struct {
	logger        *zap.Logger
	defaultOffset Offset
	seenChannels  map[string]struct{}
	result        *Result
}

func (in *ingester) truncate(err error) {
	in.logger.Warn("The document is truncated or broken, keep the parsed entries.", zap.Error(err))
	in.result.Truncated = true
}

// addChannel 解析频道，缺少ID的频道直接忽略
func (in *ingester) addChannel(ch *XmlChannel) {
	id := strings.TrimSpace(ch.Id)
	if id == "" {
		return
	}
	if _, ok := in.seenChannels[id]; ok {
		in.logger.Debug("Duplicate channel, keep the first one.", zap.String("channelId", id))
		return
	}
	in.seenChannels[id] = struct{}{}

	displayName := firstText(ch.DisplayNames)
	if displayName == "" {
		displayName = id
	}
	var icon string
	for _, xi := range ch.Icons {
		if src := strings.TrimSpace(xi.Src); src != "" {
			icon = src
			break
		}
	}

	in.result.Channels = append(in.result.Channels, epg.Channel{
		ID:          id,
		DisplayName: displayName,
		Icon:        icon,
	})
	in.result.ChannelCount++
}

// addProgramme 解析节目，不合法的节目计入跳过数
func (in *ingester) addProgramme(xp *XmlProgramme) {
	program, reason, err := in.convertProgramme(xp)
	if reason != "" {
		in.result.Skipped++
		in.result.SkippedByReason[reason]++
		in.logger.Sugar().Warnf("Skip the programme of channel %q. Reason: %s, start: %q, stop: %q, error: %v",
			xp.Channel, reason, xp.Start, xp.Stop, err)
		return
	}

	in.result.Programs[program.ChannelID] = append(in.result.Programs[program.ChannelID], program)
	in.result.ProgramCount++
}

func (in *ingester) convertProgramme(xp *XmlProgramme) (epg.Program, SkipReason, error) {
	channelID := strings.TrimSpace(xp.Channel)
	if channelID == "" {
		return epg.Program{}, SkipMissingChannel, nil
	}

	start, err := ParseTimestamp(xp.Start, in.defaultOffset)
	if err != nil {
		return epg.Program{}, SkipInvalidStart, err
	}
	end, err := ParseTimestamp(xp.Stop, in.defaultOffset)
	if err != nil {
		return epg.Program{}, SkipInvalidStop, err
	}
	if start >= end {
		return epg.Program{}, SkipInvalidInterval, nil
	}

	title := firstText(xp.Titles)
	if title == "" {
		title = DefaultTitle
	}

	return epg.Program{
		ChannelID:   channelID,
		Title:       title,
		Description: firstText(xp.Descs),
		Categories:  categories(xp.Categories),
		Start:       start,
		End:         end,
		EpisodeNum:  episodeNum(xp.EpisodeNums),
		Rating:      rating(xp.Ratings),
		Credits:     credits(xp.Credits),
	}, "", nil
}

// categories 去重后的分类列表
func categories(texts []XmlText) []string {
	var result []string
	for _, text := range texts {
		v := strings.TrimSpace(text.Value)
		if v == "" || slices.Contains(result, v) {
			continue
		}
		result = append(result, v)
	}
	return result
}

// episodeNum 优先使用onscreen格式的剧集编号
func episodeNum(nums []XmlEpisodeNum) string {
	var fallback string
	for _, num := range nums {
		v := strings.TrimSpace(num.Value)
		if v == "" {
			continue
		}
		if num.System == "onscreen" {
			return v
		}
		if fallback == "" {
			fallback = v
		}
	}
	return fallback
}

func rating(ratings []XmlRating) string {
	for _, r := range ratings {
		if v := strings.TrimSpace(r.Value); v != "" {
			return v
		}
	}
	return ""
}

func credits(xc *XmlCredits) []epg.Credit {
	if xc == nil {
		return nil
	}

	var result []epg.Credit
	add := func(role string, texts []XmlText) {
		for _, text := range texts {
			if v := strings.TrimSpace(text.Value); v != "" {
				result = append(result, epg.Credit{Role: role, Name: v})
			}
		}
	}

	add("director", xc.Directors)
	for _, actor := range xc.Actors {
		if v := strings.TrimSpace(actor.Value); v != "" {
			result = append(result, epg.Credit{Role: "actor", Name: v, Character: strings.TrimSpace(actor.Role)})
		}
	}
	add("writer", xc.Writers)
	add("adapter", xc.Adapters)
	add("producer", xc.Producers)
	add("composer", xc.Composers)
	add("editor", xc.Editors)
	add("presenter", xc.Presenters)
	add("commentator", xc.Commentators)
	add("guest", xc.Guests)
	return result
}
