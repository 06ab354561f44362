package matcher

import (
	"strings"
	"unicode"
)

// skillCueWords 技能短语的提示词，候选片段的小写形式至少包含其中之一才会被保留
var skillCueWords = []string{"skill", "experience", "knowledge", "proficiency"}

// ExtractSkillPhrases 从自由文本中启发式地抽取技能短语
// 把文本切成类名词短语的片段，只保留含提示词的片段，结果按首次出现顺序去重
// 这是一个有意过采/欠采的粗筛，不是技能词典查询；调用方必须容忍空或含噪的结果
// 任何输入（包括空串和畸形文本）都不会导致错误，最差返回空集
func ExtractSkillPhrases(text string) []string {
	phrases := []string{}
	if strings.TrimSpace(text) == "" {
		return phrases
	}

	seen := make(map[string]struct{})
	for _, span := range splitCandidateSpans(text) {
		lower := strings.ToLower(span)
		if !containsCueWord(lower) {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		phrases = append(phrases, span)
	}
	return phrases
}

// splitCandidateSpans 按行和子句边界把文本切成候选片段
func splitCandidateSpans(text string) []string {
	var spans []string
	for _, line := range strings.Split(text, "\n") {
		for _, clause := range strings.FieldsFunc(line, isClauseBoundary) {
			span := strings.TrimFunc(clause, func(r rune) bool {
				return unicode.IsSpace(r) || r == '-' || r == '*' || r == '•'
			})
			if span != "" {
				spans = append(spans, span)
			}
		}
	}
	return spans
}

// isClauseBoundary 子句切分边界：句读、分号、冒号及其全角形式
func isClauseBoundary(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '(', ')', '，', '。', '；', '：', '！', '？', '（', '）':
		return true
	}
	return false
}

func containsCueWord(lower string) bool {
	for _, cue := range skillCueWords {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
