package epg

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// minTokenLen 索引及查询词的最小长度（按字符计）
const minTokenLen = 2

// Tokenize 对文本进行分词：NFKC归一化（全角转半角）、转小写、按空白切分，丢弃长度小于2的词
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	text = strings.ToLower(norm.NFKC.String(text))
	words := strings.Fields(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < minTokenLen {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// programTokens 获取节目的去重索引词：标题 + 描述 + 分类
func programTokens(p *Program) []string {
	var sb strings.Builder
	sb.WriteString(p.Title)
	sb.WriteByte(' ')
	sb.WriteString(p.Description)
	for _, category := range p.Categories {
		sb.WriteByte(' ')
		sb.WriteString(category)
	}

	tokens := Tokenize(sb.String())
	seen := make(map[string]struct{}, len(tokens))
	result := tokens[:0]
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}
