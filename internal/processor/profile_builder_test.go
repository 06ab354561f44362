package processor_test

import (
	"testing"
	"time"

	"cv-match-go/internal/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationYears(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"显式中文年限", "3年后端开发经验", 3},
		{"显式英文年限", "2.5 years of experience with Go", 2.5},
		{"中文月数", "实习6个月，负责数据清洗", 0.5},
		{"纯年份区间", "2019-2023 在某厂担任工程师", 4},
		{"带月份的区间", "2021年3月 - 2023年5月 负责支付系统", 2},
		{"英文区间", "2018 to 2022, built data pipelines", 4},
		{"无年限线索", "负责团队管理与跨部门协作", 0},
		{"孤立年份不算年限", "毕业于2023年", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, processor.ParseDurationYears(tt.text), 1e-9, "年限解析结果不符")
		})
	}
}

func TestParseDurationYearsOpenEndedRange(t *testing.T) {
	got := processor.ParseDurationYears("2020至今 担任高级工程师")
	want := float64(time.Now().Year() - 2020)
	assert.InDelta(t, want, got, 1e-9, "开放区间应以当前年份收尾")
}

func TestBuildFromTextSections(t *testing.T) {
	rawText := `张三

专业技能
熟练掌握 Go 语言, 具备 Kubernetes 使用经验
熟悉 MySQL 调优

工作经历
2019-2023 某互联网公司 后端工程师
负责订单服务的设计与开发

6个月 某创业公司 实习生

教育经历
某大学 计算机科学 本科`

	builder := processor.NewProfileBuilder(nil)
	profile := builder.BuildFromText("test-uuid", rawText)

	assert.Equal(t, "test-uuid", profile.SubmissionUUID)
	assert.Equal(t, rawText, profile.RawText, "RawText应保留原文")
	assert.NotEmpty(t, profile.Skills, "应从技能小节抽取到技能")
	assert.Contains(t, profile.Skills, "熟悉 MySQL 调优")
	assert.Contains(t, profile.Education, "计算机科学")

	require.Len(t, profile.ExperienceEntries, 2, "工作经历小节应切出两段经历")
	assert.InDelta(t, 4.0, profile.ExperienceEntries[0].DurationYears, 1e-9)
	assert.InDelta(t, 0.5, profile.ExperienceEntries[1].DurationYears, 1e-9)
	assert.Contains(t, profile.ExperienceEntries[0].Description, "订单服务")
}

func TestBuildFromTextNoSectionsFallback(t *testing.T) {
	rawText := "3年 Go 开发经验，负责微服务架构。\n\n精通分布式系统设计。"

	builder := processor.NewProfileBuilder(nil)
	profile := builder.BuildFromText("u1", rawText)

	// 无经历小节时只把含年限线索的段落当经历
	require.Len(t, profile.ExperienceEntries, 1)
	assert.InDelta(t, 3.0, profile.ExperienceEntries[0].DurationYears, 1e-9)
}

func TestBuildFromTextEmpty(t *testing.T) {
	builder := processor.NewProfileBuilder(nil)
	profile := builder.BuildFromText("u2", "   \n  ")

	assert.Empty(t, profile.Skills)
	assert.Empty(t, profile.ExperienceEntries)
	assert.Empty(t, profile.Education)
}

func TestBuildFromTextEntryWithoutDurationInsideSection(t *testing.T) {
	rawText := `工作经历
负责内部工具维护，年限未注明`

	builder := processor.NewProfileBuilder(nil)
	profile := builder.BuildFromText("u3", rawText)

	// 经历小节内无法解析年限的条目保留，年限记0
	require.Len(t, profile.ExperienceEntries, 1)
	assert.Zero(t, profile.ExperienceEntries[0].DurationYears)
}
