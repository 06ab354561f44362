package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("张"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))

	masked := MaskPII("myemail@example.com")
	assert.True(t, strings.HasPrefix(masked, "my"))
	assert.True(t, strings.HasSuffix(masked, "om"))
	assert.NotContains(t, masked, "example")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	truncated := TruncateString(long, 21)
	assert.Contains(t, truncated, "...")
	assert.LessOrEqual(t, len([]rune(truncated)), 21)

	// 中文按rune截断，不能把多字节字符切坏
	chinese := strings.Repeat("简历内容", 100)
	assert.True(t, len([]rune(TruncateString(chinese, 30))) <= 30)
}

func TestSafeAttributeValue(t *testing.T) {
	// 命中敏感关键字的属性名必须掩码
	masked := SafeAttributeValue("candidate_name", "张三丰", 100)
	assert.Equal(t, "张*丰", masked)

	masked = SafeAttributeValue("user_email", "someone@example.com", 100)
	assert.NotContains(t, masked, "someone")

	// 普通属性只做截断
	plain := SafeAttributeValue("object_key", strings.Repeat("x", 300), 20)
	assert.LessOrEqual(t, len([]rune(plain)), 20)
}

func TestSafeRedisKey(t *testing.T) {
	key := "cvmatch:job:description_vector:job-001"
	assert.Equal(t, key, SafeRedisKey(key))

	long := "cvmatch:match:result:" + strings.Repeat("f", 200)
	assert.LessOrEqual(t, len([]rune(SafeRedisKey(long))), MaxRedisLength)
}
