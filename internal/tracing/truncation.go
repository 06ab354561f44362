package tracing

import (
	"strings"
)

// span属性的截断上限，按属性承载的内容区分
const (
	// MaxSQLLength db.statement属性里SQL文本的上限
	MaxSQLLength = 500

	// MaxRedisLength 缓存key属性的上限
	MaxRedisLength = 100

	// MaxHeaderLength 文件名、HTTP头一类短文本属性的上限
	MaxHeaderLength = 100

	// MaxResumeLength 简历文本预览属性的上限，全文绝不进span
	MaxResumeLength = 150
)

// sensitiveNameWords 属性名里出现这些词就认为值是个人信息
var sensitiveNameWords = map[string]bool{
	"email":    true,
	"phone":    true,
	"password": true,
	"身份证":      true,
	"id_card":  true,
	"address":  true,
	"地址":       true,
	"name":     true,
	"姓名":       true,
	"age":      true,
	"年龄":       true,
	"secret":   true,
	"token":    true,
}

// SafeAttributeValue 按属性名决定值的处理方式:
// 名字命中敏感词走掩码，其余只做长度截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for word := range sensitiveNameWords {
		if strings.Contains(lowerName, word) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 掩码个人信息，保留首尾便于排查时对账
// 两字姓名只留姓，四字以内留首尾各一，更长的留首尾各两位
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	length := len(runes)

	if length <= 1 {
		return "*"
	}
	if length <= 4 {
		if length == 2 {
			return string(runes[0:1]) + "*"
		}
		return string(runes[0:1]) + strings.Repeat("*", length-2) + string(runes[length-1:])
	}

	return string(runes[0:2]) + strings.Repeat("*", length-4) + string(runes[length-2:])
}

// TruncateString 按rune截断，超长时保留首尾两段并以省略号相接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}

	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}

	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 截断进span的SQL文本
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 截断进span的缓存key
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

// SafeResumeContent 截断进span的简历文本片段
func SafeResumeContent(content string) string {
	return TruncateString(content, MaxResumeLength)
}
