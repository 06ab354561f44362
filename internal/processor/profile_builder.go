package processor

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cv-match-go/internal/matcher"
	"cv-match-go/internal/types"
)

// 简历分节的标题关键词，大小写不敏感
var (
	experienceHeaders = []string{"工作经历", "工作经验", "项目经历", "项目经验", "实习经历", "work experience", "professional experience", "employment", "projects", "internship"}
	educationHeaders  = []string{"教育经历", "教育背景", "学历", "education", "academic"}
	skillHeaders      = []string{"技能", "专业技能", "技能清单", "skills", "technical skills", "core competencies"}
)

// 年限表达式: "3年"、"2.5 years"、"6个月"
// 显式年限限定1-2位数字并要求数字边界，避免把"2021年"这样的日期当成年限
var (
	explicitYearsRe  = regexp.MustCompile(`(?i)(?:^|[^\d.])(\d{1,2}(?:\.\d+)?)\s*(?:年|years?|yrs?)`)
	explicitMonthsRe = regexp.MustCompile(`(?i)(?:^|[^\d.])(\d{1,2})\s*(?:个月|months?)`)
	// 年份区间: "2019-2023"、"2020.03 ~ 2022.07"、"2021至今"、"2018 - present"
	yearRangeRe = regexp.MustCompile(`(?i)((?:19|20)\d{2})(?:[./年]\s?\d{1,2}月?)?\s*(?:[-–~—]|至|到|to)\s*((?:19|20)\d{2}|至今|现在|present|now|current)`)

	// 技能清单的条目分隔符与段落分隔
	skillSeparatorRe = regexp.MustCompile(`[,;，；。、/|]`)
	blankLineRe      = regexp.MustCompile(`\n\s*\n`)
)

// ProfileBuilder 将解析出的简历纯文本构建为结构化画像。
// 纯词法实现，分节与年限解析都不依赖LLM。
type ProfileBuilder struct {
	logger *log.Logger
}

// NewProfileBuilder 创建画像构建器
func NewProfileBuilder(logger *log.Logger) *ProfileBuilder {
	if logger == nil {
		logger = log.Default()
	}
	return &ProfileBuilder{logger: logger}
}

// BuildFromText 从简历纯文本构建 ResumeProfile。
// 技能优先取技能小节，没有技能小节时对全文做线索词抽取；
// 经历条目来自经历小节的分块，无法解析年限的条目年限记0。
func (b *ProfileBuilder) BuildFromText(submissionUUID, rawText string) types.ResumeProfile {
	profile := types.ResumeProfile{
		SubmissionUUID: submissionUUID,
		RawText:        rawText,
	}
	if strings.TrimSpace(rawText) == "" {
		return profile
	}

	sections := splitSections(rawText)

	// 技能小节本身就是技能列表，逐条切分即可；
	// 没有技能小节时退回全文的线索词抽取
	if skillText, ok := sections["skills"]; ok {
		profile.Skills = splitSkillList(skillText)
	}
	if len(profile.Skills) == 0 {
		profile.Skills = matcher.ExtractSkillPhrases(rawText)
	}

	if eduText, ok := sections["education"]; ok {
		profile.Education = strings.TrimSpace(eduText)
	}

	expText, ok := sections["experience"]
	if !ok {
		// 没有明确的经历小节时，把含年限线索的段落当作经历
		expText = rawText
	}
	profile.ExperienceEntries = b.extractExperienceEntries(expText, ok)

	return profile
}

// splitSections 按标题行把简历文本切成命名小节
func splitSections(text string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf strings.Builder

	flush := func() {
		if current != "" && buf.Len() > 0 {
			sections[current] += buf.String()
		}
		buf.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if kind := headerKind(line); kind != "" {
			flush()
			current = kind
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()
	return sections
}

// headerKind 判断一行是否是小节标题，返回小节类型
// 标题行通常很短，长行即使包含关键词也按正文处理
func headerKind(line string) string {
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(line), ":：#*-="))
	if trimmed == "" || len([]rune(trimmed)) > 20 {
		return ""
	}
	lower := strings.ToLower(trimmed)
	for _, h := range experienceHeaders {
		if strings.Contains(lower, h) {
			return "experience"
		}
	}
	for _, h := range educationHeaders {
		if strings.Contains(lower, h) {
			return "education"
		}
	}
	for _, h := range skillHeaders {
		if strings.Contains(lower, h) {
			return "skills"
		}
	}
	return ""
}

// splitSkillList 把技能小节按行与子句边界切成独立技能条目。
// 小节里的每一条都视为技能，不再要求命中线索词。
func splitSkillList(text string) []string {
	var skills []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "·•-*　 ")
		if line == "" {
			continue
		}
		for _, span := range skillSeparatorRe.Split(line, -1) {
			span = strings.TrimSpace(span)
			if len([]rune(span)) < 2 {
				continue
			}
			key := strings.ToLower(span)
			if seen[key] {
				continue
			}
			seen[key] = true
			skills = append(skills, span)
		}
	}
	return skills
}

// extractExperienceEntries 把经历文本切块并逐块解析年限。
// fromSection 为 false 表示在全文里兜底查找，此时只保留能解析出年限的块。
func (b *ProfileBuilder) extractExperienceEntries(text string, fromSection bool) []types.ExperienceEntry {
	var entries []types.ExperienceEntry
	for _, block := range splitBlocks(text) {
		years := ParseDurationYears(block)
		if !fromSection && years <= 0 {
			continue
		}
		entries = append(entries, types.ExperienceEntry{
			Description:   block,
			DurationYears: years,
		})
	}
	return entries
}

// splitBlocks 按空行把文本切成段落块
func splitBlocks(text string) []string {
	var blocks []string
	for _, raw := range blankLineRe.Split(text, -1) {
		block := strings.TrimSpace(raw)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// ParseDurationYears 从一段经历描述中解析工作年限。
// 依次尝试年份区间、显式年限、显式月数；都解析不出返回0，绝不返回负数。
func ParseDurationYears(text string) float64 {
	if m := yearRangeRe.FindStringSubmatch(text); m != nil {
		start, err := strconv.Atoi(m[1])
		if err == nil {
			end := time.Now().Year()
			if endYear, err := strconv.Atoi(m[2]); err == nil {
				end = endYear
			}
			if years := float64(end - start); years > 0 {
				return years
			}
		}
	}

	if m := explicitYearsRe.FindStringSubmatch(text); m != nil {
		if years, err := strconv.ParseFloat(m[1], 64); err == nil && years > 0 {
			return years
		}
	}

	if m := explicitMonthsRe.FindStringSubmatch(text); m != nil {
		if months, err := strconv.ParseFloat(m[1], 64); err == nil && months > 0 {
			return months / 12
		}
	}

	return 0
}
