package nlp

import (
	"regexp"
	"strings"

	"TravelPlanner/internal/travel"
)

var (
	codePattern   = regexp.MustCompile(`\b([A-Z]{3})\b`)
	phrasePattern = regexp.MustCompile(`(?i)\bto\s+([\p{L}][\p{L}\s]*)`)
	stopPattern   = regexp.MustCompile(`(?i)\b(?:for|with|on|in|by|during|next|this|today|tomorrow|from)\b`)
	punctPattern  = regexp.MustCompile(`[,.!?]`)
)

// Resolver 用纯规则从查询文本中解析目的地，不依赖任何外部服务。
// 零值即可使用。
type Resolver struct{}

// NewResolver 创建一个目的地解析器。
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve 解析查询文本并返回目的地。解析顺序:
// 显式三字码优先，其次是 "to <短语>" 中的城市名。
// 解析不到目的地不是错误，返回两个空字段。
func (r *Resolver) Resolve(query string) travel.ParsedDestination {
	if match := codePattern.FindString(query); match != "" {
		if entry, ok := destinationAliases[strings.ToLower(match)]; ok {
			return destination(entry.City, entry.Code)
		}
		// 未知三字码按原样透传，由下游决定能否使用。
		return travel.ParsedDestination{DestinationCode: ptr(match)}
	}

	match := phrasePattern.FindStringSubmatch(query)
	if match == nil {
		return travel.ParsedDestination{}
	}
	phrase := strings.TrimSpace(match[1])
	phrase = truncateAtStopWord(phrase)
	if phrase == "" {
		return travel.ParsedDestination{}
	}

	// 子串匹配兼容 "go to New York City" 这类短语里嵌着城市名的写法，
	// 最长别名优先保证 "new york city" 不会被 "new york" 抢先命中。
	lowered := strings.ToLower(phrase)
	for _, key := range aliasKeysByLength {
		if strings.Contains(lowered, key) {
			entry := destinationAliases[key]
			return destination(entry.City, entry.Code)
		}
	}
	// 别名表没有命中时保留原始短语，三字码留空。
	return travel.ParsedDestination{Destination: ptr(phrase)}
}

// truncateAtStopWord 在第一个停用词或句读符号处截断短语。
func truncateAtStopWord(phrase string) string {
	if loc := stopPattern.FindStringIndex(phrase); loc != nil {
		phrase = phrase[:loc[0]]
	}
	if loc := punctPattern.FindStringIndex(phrase); loc != nil {
		phrase = phrase[:loc[0]]
	}
	return strings.TrimSpace(phrase)
}

func destination(city, code string) travel.ParsedDestination {
	return travel.ParsedDestination{Destination: ptr(city), DestinationCode: ptr(code)}
}

func ptr(s string) *string {
	return &s
}
