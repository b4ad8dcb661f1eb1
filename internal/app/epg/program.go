package epg

import "slices"

// Channel 频道
type Channel struct {
	ID          string `json:"id"`             // 频道ID，来自节目单文档，全局唯一
	DisplayName string `json:"displayName"`    // 频道名称，缺省时使用频道ID
	Icon        string `json:"icon,omitempty"` // 台标URL
}

// Credit 演职人员
type Credit struct {
	Role      string `json:"role"`                // 角色类型，例如：director、actor
	Name      string `json:"name"`                // 姓名
	Character string `json:"character,omitempty"` // 饰演的角色（仅actor）
}

// Program 节目
type Program struct {
	ChannelID   string   `json:"channelId"`             // 所属频道ID
	Title       string   `json:"title"`                 // 节目名称
	Description string   `json:"description,omitempty"` // 节目描述
	Categories  []string `json:"categories,omitempty"`  // 节目分类
	Start       int64    `json:"start"`                 // 开始时间（毫秒时间戳，包含）
	End         int64    `json:"end"`                   // 结束时间（毫秒时间戳，不包含）
	EpisodeNum  string   `json:"episodeNum,omitempty"`  // 剧集编号
	Rating      string   `json:"rating,omitempty"`      // 分级
	Credits     []Credit `json:"credits,omitempty"`     // 演职人员
}

// Covers 判断节目是否覆盖指定时刻
func (p *Program) Covers(at int64) bool {
	return p.Start <= at && at < p.End
}

// clone 深拷贝分类及演职人员，返回给调用方的节目不与快照共享底层数组
func (p *Program) clone() Program {
	c := *p
	c.Categories = slices.Clone(p.Categories)
	c.Credits = slices.Clone(p.Credits)
	return c
}

// Overlaps 判断节目是否与[start, end)区间重叠
func (p *Program) Overlaps(start, end int64) bool {
	return p.End > start && p.Start < end
}

// TimeRange 时间区间[Start, End)
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ScoredResult 搜索结果
type ScoredResult struct {
	Program Program `json:"program"`
	Score   int     `json:"score"`
}

// NowNext 频道当前及下一个节目
type NowNext struct {
	ChannelID string   `json:"channelId"`
	Now       *Program `json:"now"`
	Next      *Program `json:"next"`
}

// ChannelWindow 频道在指定时间窗口内的节目单
type ChannelWindow struct {
	ChannelID   string    `json:"channelId"`
	ChannelName string    `json:"channelName"`
	Programs    []Program `json:"programs"`
}

// Stats 索引统计信息
type Stats struct {
	Channels int `json:"channels"`
	Programs int `json:"programs"`
	Tokens   int `json:"tokens"`
}
