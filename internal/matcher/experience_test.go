package matcher_test

import (
	"context"
	"math"
	"testing"

	"cv-match-go/internal/matcher"
	"cv-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchExperience_AggregateAndRelevance(t *testing.T) {
	jobDesc := "负责后端服务的设计与开发"
	entry1 := types.ExperienceEntry{Description: "开发 Go 微服务", DurationYears: 3}
	entry2 := types.ExperienceEntry{Description: "门店销售", DurationYears: 2}

	// 聚合文本是各条描述按空格拼接的结果，需要单独注册向量
	emb := newStubEmbedder(2, map[string][]float64{
		jobDesc:          {1, 0},
		"开发 Go 微服务 门店销售": {0.75, math.Sqrt(1 - 0.75*0.75)},
		"开发 Go 微服务":      {0.9, math.Sqrt(1 - 0.9*0.9)},
		"门店销售":           {0.1, math.Sqrt(1 - 0.1*0.1)},
	})
	s, err := matcher.NewExperienceScorer(emb)
	require.NoError(t, err)

	score, analysis := s.MatchExperience(context.Background(), jobDesc, []types.ExperienceEntry{entry1, entry2})

	assert.InDelta(t, 75.0, score, 1e-9, "聚合分 = cosine(岗位描述, 拼接文本)×100")
	assert.InDelta(t, 5.0, analysis.TotalYears, 1e-9)
	assert.Equal(t, []types.ExperienceEntry{entry1}, analysis.RelevantExperience,
		"只有相似度严格超过0.6的条目算相关")
	assert.Equal(t, 1, emb.callCount(), "岗位描述、聚合文本和逐条描述应合并为一次批量嵌入")
}

func TestMatchExperience_EmptyEntries(t *testing.T) {
	emb := newStubEmbedder(2, nil)
	s, err := matcher.NewExperienceScorer(emb)
	require.NoError(t, err)

	score, analysis := s.MatchExperience(context.Background(), "任意岗位", nil)

	assert.Zero(t, score)
	assert.Zero(t, analysis.TotalYears)
	assert.NotNil(t, analysis.RelevantExperience)
	assert.Empty(t, analysis.RelevantExperience)
	assert.Zero(t, emb.callCount(), "没有经历时不应调用嵌入服务")
}

func TestMatchExperience_EmbeddingFailureKeepsTotalYears(t *testing.T) {
	emb := newStubEmbedder(2, nil)
	emb.err = assert.AnError
	s, err := matcher.NewExperienceScorer(emb)
	require.NoError(t, err)

	entries := []types.ExperienceEntry{
		{Description: "后端开发", DurationYears: 4.5},
		{Description: "运维", DurationYears: 1.5},
	}
	score, analysis := s.MatchExperience(context.Background(), "后端岗位", entries)

	assert.Zero(t, score, "嵌入失败时经历分降级为0")
	assert.InDelta(t, 6.0, analysis.TotalYears, 1e-9, "年限求和不依赖嵌入服务")
	assert.Empty(t, analysis.RelevantExperience)
}

func TestMatchExperience_NonPositiveDurationIgnored(t *testing.T) {
	emb := newStubEmbedder(2, nil)
	s, err := matcher.NewExperienceScorer(emb)
	require.NoError(t, err)

	entries := []types.ExperienceEntry{
		{Description: "实习", DurationYears: 0},
		{Description: "兼职", DurationYears: -2},
		{Description: "全职", DurationYears: 3},
	}
	_, analysis := s.MatchExperience(context.Background(), "岗位", entries)

	assert.InDelta(t, 3.0, analysis.TotalYears, 1e-9, "零和负的年限不计入总年限")
}

func TestMatchExperience_CustomRelevanceThreshold(t *testing.T) {
	jobDesc := "数据分析岗位"
	entry := types.ExperienceEntry{Description: "报表开发", DurationYears: 1}
	emb := newStubEmbedder(2, map[string][]float64{
		jobDesc: {1, 0},
		"报表开发":  {0.5, math.Sqrt(0.75)},
	})
	s, err := matcher.NewExperienceScorer(emb, matcher.WithRelevanceThreshold(0.4))
	require.NoError(t, err)

	_, analysis := s.MatchExperience(context.Background(), jobDesc, []types.ExperienceEntry{entry})

	assert.Equal(t, []types.ExperienceEntry{entry}, analysis.RelevantExperience)
}
