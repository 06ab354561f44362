package matcher_test

import (
	"testing"

	"cv-match-go/internal/matcher"

	"github.com/stretchr/testify/assert"
)

func TestExtractSkillPhrases_CueWordFilter(t *testing.T) {
	text := "Strong programming skills in Go, five years of experience with Kubernetes, likes hiking"

	phrases := matcher.ExtractSkillPhrases(text)

	assert.Contains(t, phrases, "Strong programming skills in Go")
	assert.Contains(t, phrases, "five years of experience with Kubernetes")
	assert.NotContains(t, phrases, "likes hiking", "不含提示词的片段应被过滤")
}

func TestExtractSkillPhrases_BulletLines(t *testing.T) {
	text := "Requirements:\n- solid SQL knowledge\n- proficiency in Python\n- team player"

	phrases := matcher.ExtractSkillPhrases(text)

	assert.Equal(t, []string{"solid SQL knowledge", "proficiency in Python"}, phrases,
		"项目符号应被剥除且保持出现顺序")
}

func TestExtractSkillPhrases_DedupCaseInsensitive(t *testing.T) {
	text := "SQL knowledge, sql knowledge, SQL Knowledge"

	phrases := matcher.ExtractSkillPhrases(text)

	assert.Equal(t, []string{"SQL knowledge"}, phrases, "去重不区分大小写，保留首次出现的原始写法")
}

func TestExtractSkillPhrases_CJKPunctuation(t *testing.T) {
	text := "要求：扎实的 Go experience；良好的沟通能力"

	phrases := matcher.ExtractSkillPhrases(text)

	assert.Equal(t, []string{"扎实的 Go experience"}, phrases, "全角标点同样是子句边界")
}

func TestExtractSkillPhrases_DegenerateInput(t *testing.T) {
	assert.Empty(t, matcher.ExtractSkillPhrases(""))
	assert.NotNil(t, matcher.ExtractSkillPhrases(""), "空输入返回空切片而不是nil")
	assert.Empty(t, matcher.ExtractSkillPhrases("   \n\t  "))
	assert.Empty(t, matcher.ExtractSkillPhrases("。。。，，；；"))
}
