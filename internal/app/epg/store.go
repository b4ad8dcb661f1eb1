package epg

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// ChannelPrograms 单个频道的不可变节目单快照：按开始时间升序排列的节目，及并行的开始时间数组和索引词
type ChannelPrograms struct {
	channelID string
	programs  []Program
	starts    []int64
	tokens    map[string][]int // 索引词 -> 节目在programs中的下标（升序）
}

// BuildChannelPrograms 在不持有任何锁的情况下构建频道快照，开始时间不小于结束时间的节目会被丢弃
func BuildChannelPrograms(channelID string, programs []Program) *ChannelPrograms {
	sorted := make([]Program, 0, len(programs))
	for _, program := range programs {
		if program.Start >= program.End {
			continue
		}
		program.ChannelID = channelID
		sorted = append(sorted, program)
	}
	slices.SortStableFunc(sorted, func(a, b Program) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	cp := &ChannelPrograms{
		channelID: channelID,
		programs:  sorted,
		starts:    make([]int64, len(sorted)),
		tokens:    make(map[string][]int),
	}
	for i := range sorted {
		cp.starts[i] = sorted[i].Start
		for _, token := range programTokens(&sorted[i]) {
			cp.tokens[token] = append(cp.tokens[token], i)
		}
	}
	return cp
}

// ChannelID 快照所属频道
func (cp *ChannelPrograms) ChannelID() string {
	return cp.channelID
}

// Len 节目数量
func (cp *ChannelPrograms) Len() int {
	return len(cp.programs)
}

// firstAfter 返回第一个开始时间大于at的节目下标
func (cp *ChannelPrograms) firstAfter(at int64) int {
	return sort.Search(len(cp.starts), func(i int) bool {
		return cp.starts[i] > at
	})
}

// current 返回覆盖at的节目下标，没有则返回-1
func (cp *ChannelPrograms) current(at int64) int {
	i := cp.firstAfter(at) - 1
	if i >= 0 && at < cp.programs[i].End {
		return i
	}
	return -1
}

func (cp *ChannelPrograms) now(at int64) *Program {
	if i := cp.current(at); i >= 0 {
		p := cp.programs[i].clone()
		return &p
	}
	return nil
}

// next 当前有节目播出时返回其后继节目，否则返回第一个开始时间晚于at的节目
func (cp *ChannelPrograms) next(at int64) *Program {
	next := cp.firstAfter(at)
	if i := cp.current(at); i >= 0 {
		next = i + 1
	}
	if next >= len(cp.programs) {
		return nil
	}
	p := cp.programs[next].clone()
	return &p
}

func (cp *ChannelPrograms) inRange(start, end int64) []Program {
	result := make([]Program, 0)
	if start >= end {
		return result
	}

	// 从最后一个开始时间不晚于start的节目开始向后扫描
	origin := cp.firstAfter(start) - 1
	if origin < 0 {
		origin = 0
	}
	for i := origin; i < len(cp.programs); i++ {
		program := &cp.programs[i]
		if program.Start >= end {
			break
		}
		if program.End > start {
			result = append(result, program.clone())
		}
	}
	return result
}

// Store 节目单索引存储。
// 写操作（SetChannelPrograms、RemoveChannel、Clear）由单一写者调用，读操作可并发执行。
type Store struct {
	mu       sync.RWMutex
	channels map[string]*ChannelPrograms
	index    map[string]map[string][]int // 索引词 -> 频道ID -> 节目下标
	infos    map[string]Channel          // 频道ID -> 频道信息（名称、台标）
}

func NewStore() *Store {
	return &Store{
		channels: make(map[string]*ChannelPrograms),
		index:    make(map[string]map[string][]int),
		infos:    make(map[string]Channel),
	}
}

// SetChannelPrograms 整体替换指定频道的节目单。displayName为空时保留原有的频道名称。
func (s *Store) SetChannelPrograms(channelID string, programs []Program, displayName string) {
	s.Publish(BuildChannelPrograms(channelID, programs), Channel{ID: channelID, DisplayName: displayName})
}

// Publish 发布预先构建好的频道快照：先移除旧快照的索引词，再写入新快照及其索引词。
// info中为空的名称、台标沿用原有的值。
func (s *Store) Publish(cp *ChannelPrograms, info Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.channels[cp.channelID]; ok {
		s.unindex(old)
	}
	s.channels[cp.channelID] = cp
	for token, positions := range cp.tokens {
		refs, ok := s.index[token]
		if !ok {
			refs = make(map[string][]int)
			s.index[token] = refs
		}
		refs[cp.channelID] = positions
	}

	old := s.infos[cp.channelID]
	info.ID = cp.channelID
	if info.DisplayName == "" {
		info.DisplayName = old.DisplayName
	}
	if info.DisplayName == "" {
		info.DisplayName = cp.channelID
	}
	if info.Icon == "" {
		info.Icon = old.Icon
	}
	s.infos[cp.channelID] = info
}

// RemoveChannel 删除频道及其索引，返回频道是否存在
func (s *Store) RemoveChannel(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.channels[channelID]
	if !ok {
		return false
	}
	s.unindex(cp)
	delete(s.channels, channelID)
	delete(s.infos, channelID)
	return true
}

// unindex 移除快照对应的索引词，调用方需持有写锁
func (s *Store) unindex(cp *ChannelPrograms) {
	for token := range cp.tokens {
		refs, ok := s.index[token]
		if !ok {
			continue
		}
		delete(refs, cp.channelID)
		if len(refs) == 0 {
			delete(s.index, token)
		}
	}
}

// Clear 同时清空频道、索引及频道信息
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channels = make(map[string]*ChannelPrograms)
	s.index = make(map[string]map[string][]int)
	s.infos = make(map[string]Channel)
}

func (s *Store) channel(channelID string) *ChannelPrograms {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[channelID]
}

// GetNow 查询指定时刻正在播出的节目
func (s *Store) GetNow(channelID string, at int64) *Program {
	cp := s.channel(channelID)
	if cp == nil {
		return nil
	}
	return cp.now(at)
}

// GetNext 查询指定时刻之后的下一个节目
func (s *Store) GetNext(channelID string, at int64) *Program {
	cp := s.channel(channelID)
	if cp == nil {
		return nil
	}
	return cp.next(at)
}

// GetProgramsInRange 查询与[start, end)区间重叠的节目，结束于start或开始于end的节目不包含在内
func (s *Store) GetProgramsInRange(channelID string, start, end int64) []Program {
	cp := s.channel(channelID)
	if cp == nil {
		return make([]Program, 0)
	}
	return cp.inRange(start, end)
}

// GetChannelIDs 获取所有频道ID（升序）
func (s *Store) GetChannelIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// GetChannelName 获取频道名称，频道不存在时返回空字符串
func (s *Store) GetChannelName(channelID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infos[channelID].DisplayName
}

// GetChannels 获取所有频道信息（按频道ID升序）
func (s *Store) GetChannels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]Channel, 0, len(s.infos))
	for _, info := range s.infos {
		channels = append(channels, info)
	}
	slices.SortFunc(channels, func(a, b Channel) int {
		return strings.Compare(a.ID, b.ID)
	})
	return channels
}

// GetPrograms 获取频道的全部节目（按开始时间升序）
func (s *Store) GetPrograms(channelID string) []Program {
	cp := s.channel(channelID)
	if cp == nil {
		return make([]Program, 0)
	}
	programs := make([]Program, 0, len(cp.programs))
	for i := range cp.programs {
		programs = append(programs, cp.programs[i].clone())
	}
	return programs
}

func (s *Store) HasChannel(channelID string) bool {
	return s.channel(channelID) != nil
}

// GetChannelTimeRange 获取频道节目单的时间范围：第一个节目的开始时间至最后一个节目的结束时间
func (s *Store) GetChannelTimeRange(channelID string) *TimeRange {
	cp := s.channel(channelID)
	if cp == nil || len(cp.programs) == 0 {
		return nil
	}
	return &TimeRange{
		Start: cp.programs[0].Start,
		End:   cp.programs[len(cp.programs)-1].End,
	}
}

// GetNowNext 批量查询多个频道的当前及下一个节目，结果顺序与channelIDs一致
func (s *Store) GetNowNext(channelIDs []string, at int64) []NowNext {
	result := make([]NowNext, 0, len(channelIDs))
	for _, channelID := range channelIDs {
		item := NowNext{ChannelID: channelID}
		if cp := s.channel(channelID); cp != nil {
			item.Now = cp.now(at)
			item.Next = cp.next(at)
		}
		result = append(result, item)
	}
	return result
}

// GetGuideWindow 批量查询多个频道在[start, end)内的节目单，用于渲染节目表
func (s *Store) GetGuideWindow(channelIDs []string, start, end int64) []ChannelWindow {
	result := make([]ChannelWindow, 0, len(channelIDs))
	for _, channelID := range channelIDs {
		s.mu.RLock()
		cp, name := s.channels[channelID], s.infos[channelID].DisplayName
		s.mu.RUnlock()

		window := ChannelWindow{
			ChannelID:   channelID,
			ChannelName: name,
			Programs:    make([]Program, 0),
		}
		if cp != nil {
			window.Programs = cp.inRange(start, end)
		}
		result = append(result, window)
	}
	return result
}

// Stats 获取索引统计信息
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Channels: len(s.channels),
		Tokens:   len(s.index),
	}
	for _, cp := range s.channels {
		stats.Programs += len(cp.programs)
	}
	return stats
}
