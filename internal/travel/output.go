package travel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutputParseError 表示最终输出无法解析为合法的搜索结果。
// Raw 保留模型的原始文本，便于排障时还原现场。
type OutputParseError struct {
	Raw string
	Err error
}

func (e *OutputParseError) Error() string {
	return fmt.Sprintf("无法将输出解析为搜索结果: %v", e.Err)
}

func (e *OutputParseError) Unwrap() error {
	return e.Err
}

// StripFence 去掉包裹整段文本的一层 Markdown 代码围栏。
// 仅剥离最外层，围栏内部的内容原样保留。
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 && isFenceTag(body[:idx]) {
		body = body[idx+1:]
	}
	if !strings.HasSuffix(body, "```") {
		return trimmed
	}
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func isFenceTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return true
	}
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Finalize 将汇总阶段的原始文本转换成规范化的 SearchResults。
// 缺少 flights/hotels 键或 JSON 非法时返回 *OutputParseError。
func Finalize(raw string) (*SearchResults, error) {
	stripped := StripFence(raw)
	var envelope struct {
		Flights *[]Flight `json:"flights"`
		Hotels  *[]Hotel  `json:"hotels"`
	}
	if err := json.Unmarshal([]byte(stripped), &envelope); err != nil {
		return nil, &OutputParseError{Raw: raw, Err: err}
	}
	if envelope.Flights == nil || envelope.Hotels == nil {
		return nil, &OutputParseError{Raw: raw, Err: fmt.Errorf("缺少 flights 或 hotels 键")}
	}
	results := &SearchResults{Flights: *envelope.Flights, Hotels: *envelope.Hotels}
	results.Normalize()
	return results, nil
}

// ParseDestination 尝试把一段文本解析为 ParsedDestination。
func ParseDestination(raw string) (ParsedDestination, error) {
	stripped := StripFence(raw)
	var parsed ParsedDestination
	if err := json.Unmarshal([]byte(stripped), &parsed); err != nil {
		return ParsedDestination{}, err
	}
	return parsed, nil
}
