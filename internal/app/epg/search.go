package epg

import (
	"slices"
	"strings"
)

// DefaultSearchLimit maxResults<=0时使用的返回条数
const DefaultSearchLimit = 50

type programRef struct {
	channelID string
	position  int
}

// SearchPrograms 全文搜索节目。
// 对每个查询词，扫描倒排索引中所有包含该查询词（子串）的索引词，每命中一次节目得分加1。
// 指定timeRange时，完全不在区间内的节目不参与计分。
// 结果按得分降序排列，得分相同时依次按频道ID、开始时间、标题升序排列。
func (s *Store) SearchPrograms(query string, timeRange *TimeRange, maxResults int) []ScoredResult {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return []ScoredResult{}
	}
	if maxResults <= 0 {
		maxResults = DefaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make(map[programRef]int)
	for _, queryToken := range queryTokens {
		for token, refs := range s.index {
			if !strings.Contains(token, queryToken) {
				continue
			}
			for channelID, positions := range refs {
				cp := s.channels[channelID]
				for _, pos := range positions {
					if timeRange != nil && !cp.programs[pos].Overlaps(timeRange.Start, timeRange.End) {
						continue
					}
					scores[programRef{channelID: channelID, position: pos}]++
				}
			}
		}
	}

	type scoredRef struct {
		programRef
		result ScoredResult
	}
	scored := make([]scoredRef, 0, len(scores))
	for ref, score := range scores {
		scored = append(scored, scoredRef{
			programRef: ref,
			result: ScoredResult{
				Program: s.channels[ref.channelID].programs[ref.position],
				Score:   score,
			},
		})
	}
	slices.SortFunc(scored, func(a, b scoredRef) int {
		if c := compareScoredResult(a.result, b.result); c != 0 {
			return c
		}
		return a.position - b.position
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	results := make([]ScoredResult, len(scored))
	for i := range scored {
		results[i] = ScoredResult{Program: scored[i].result.Program.clone(), Score: scored[i].result.Score}
	}
	return results
}

func compareScoredResult(a, b ScoredResult) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	if c := strings.Compare(a.Program.ChannelID, b.Program.ChannelID); c != 0 {
		return c
	}
	switch {
	case a.Program.Start < b.Program.Start:
		return -1
	case a.Program.Start > b.Program.Start:
		return 1
	}
	return strings.Compare(a.Program.Title, b.Program.Title)
}
