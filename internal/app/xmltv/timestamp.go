package xmltv

import (
	"fmt"
	"strings"
	"time"
)

const (
	timestampLayout = "20060102150405"
	timestampDigits = len(timestampLayout)
	offsetLen       = 5
)

// Offset 相对UTC的时区偏移（分钟），例如：+0900 为 540
type Offset int

// ParseOffset 解析 +HHMM / -HHMM 格式的时区偏移
func ParseOffset(s string) (Offset, error) {
	if len(s) != offsetLen || (s[0] != '+' && s[0] != '-') || !isDigits(s[1:]) {
		return 0, &TimestampFormatError{Value: s, Reason: "offset must be +HHMM or -HHMM"}
	}

	hours := int(s[1]-'0')*10 + int(s[2]-'0')
	minutes := int(s[3]-'0')*10 + int(s[4]-'0')
	if hours > 23 || minutes > 59 {
		return 0, &TimestampFormatError{Value: s, Reason: "offset out of range"}
	}

	offset := Offset(hours*60 + minutes)
	if s[0] == '-' {
		offset = -offset
	}
	return offset, nil
}

// String 格式化为 +HHMM / -HHMM
func (o Offset) String() string {
	sign := '+'
	m := int(o)
	if m < 0 {
		sign = '-'
		m = -m
	}
	return fmt.Sprintf("%c%02d%02d", sign, m/60, m%60)
}

// Milliseconds 偏移的毫秒数
func (o Offset) Milliseconds() int64 {
	return int64(o) * int64(time.Minute/time.Millisecond)
}

// Location 偏移对应的固定时区
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.String(), int(o)*60)
}

// ParseTimestamp 将 YYYYMMDDHHMMSS[ ±HHMM] 格式的时间转换为毫秒时间戳。
// 14位数字按UTC解析后减去时区偏移；未携带偏移时使用defaultOffset。
// 解析失败仅通过error返回，0是合法的时间戳。
func ParseTimestamp(value string, defaultOffset Offset) (int64, error) {
	s := strings.TrimSpace(value)
	if len(s) < timestampDigits || !isDigits(s[:timestampDigits]) {
		return 0, &TimestampFormatError{Value: value, Reason: "expected 14 digits YYYYMMDDHHMMSS"}
	}

	// 按UTC解析，同时校验月、日、时、分、秒的取值范围
	wallTime, err := time.Parse(timestampLayout, s[:timestampDigits])
	if err != nil {
		return 0, &TimestampFormatError{Value: value, Reason: err.Error()}
	}

	offset := defaultOffset
	if rest := strings.TrimSpace(s[timestampDigits:]); rest != "" {
		if offset, err = ParseOffset(rest); err != nil {
			return 0, &TimestampFormatError{Value: value, Reason: "offset must be +HHMM or -HHMM"}
		}
	}

	return wallTime.UnixMilli() - offset.Milliseconds(), nil
}

// FormatTimestamp 将毫秒时间戳格式化为 YYYYMMDDHHMMSS ±HHMM
func FormatTimestamp(ms int64, offset Offset) string {
	return time.UnixMilli(ms).In(offset.Location()).Format(timestampLayout) + " " + offset.String()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
