package matcher_test

import (
	"context"
	"math"
	"testing"
	"time"

	"cv-match-go/internal/matcher"
	"cv-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNarrative 可编程的叙述分析器
type stubNarrative struct {
	text  string
	err   error
	delay time.Duration

	gotScore float64
}

func (s *stubNarrative) Analyze(ctx context.Context, _ string, _ string, precomputedScore float64) (string, error) {
	s.gotScore = precomputedScore
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

// matchFixtureEmbedder 构造一组固定向量:
// 技能分 65 (Python 命中 1.0, SQL 最佳 0.3)，经历分 75
func matchFixtureEmbedder() *stubEmbedder {
	jobDesc := "负责后端服务的设计与开发"
	return newStubEmbedder(3, map[string][]float64{
		"Python":       {1, 0, 0},
		"SQL":          {0, 1, 0},
		"Excel":        {0, 0.3, math.Sqrt(0.91)},
		jobDesc:        {1, 0, 0},
		"开发 Go 微服务":    {0.9, math.Sqrt(1 - 0.9*0.9), 0},
		"开发 Go 微服务 销售": {0.75, math.Sqrt(1 - 0.75*0.75), 0},
		"销售":           {0.1, math.Sqrt(1 - 0.1*0.1), 0},
	})
}

func matchFixtureProfiles() (types.JobProfile, types.ResumeProfile) {
	job := types.JobProfile{
		JobID:          "job-001",
		Title:          "后端工程师",
		Description:    "负责后端服务的设计与开发",
		RequiredSkills: []string{"Python", "SQL"},
	}
	resume := types.ResumeProfile{
		SubmissionUUID: "sub-001",
		RawText:        "候选人简历全文",
		Skills:         []string{"Python", "Excel"},
		ExperienceEntries: []types.ExperienceEntry{
			{Description: "开发 Go 微服务", DurationYears: 3},
			{Description: "销售", DurationYears: 2},
		},
	}
	return job, resume
}

func TestMatchCVWithJob_WeightedComposite(t *testing.T) {
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder(),
		matcher.WithEmbeddingModelVersion("text-embedding-v3"))
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()
	result, err := engine.MatchCVWithJob(context.Background(), job, resume)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.InDelta(t, 65.0, result.SkillMatchScore, 1e-6)
	assert.InDelta(t, 75.0, result.ExperienceMatchScore, 1e-6)
	assert.InDelta(t, 0.6*65.0+0.4*75.0, result.MatchScore, 1e-6, "综合分 = 0.6×技能分 + 0.4×经历分")

	assert.Equal(t, []string{"Python"}, result.MatchedSkills)
	assert.Equal(t, []string{"SQL"}, result.MissingSkills)
	assert.InDelta(t, 5.0, result.ExperienceAnalysis.TotalYears, 1e-9)
	assert.Len(t, result.ExperienceAnalysis.RelevantExperience, 1)
	assert.Equal(t, "text-embedding-v3", result.EmbeddingModelVersion)
	assert.Empty(t, result.Narrative, "未注入叙述分析器时叙述为空")
}

func TestMatchCVWithJob_Idempotent(t *testing.T) {
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder())
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()
	first, err := engine.MatchCVWithJob(context.Background(), job, resume)
	require.NoError(t, err)
	second, err := engine.MatchCVWithJob(context.Background(), job, resume)
	require.NoError(t, err)

	assert.Equal(t, first, second, "同一输入在固定嵌入器下必须产出完全相同的结果")
}

func TestMatchCVWithJob_InvalidProfiles(t *testing.T) {
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder())
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()

	result, err := engine.MatchCVWithJob(context.Background(), types.JobProfile{JobID: "job-x"}, resume)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, matcher.ErrInvalidProfile, "岗位描述与要求技能均为空")

	result, err = engine.MatchCVWithJob(context.Background(), job, types.ResumeProfile{SubmissionUUID: "sub-x"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, matcher.ErrInvalidProfile, "简历无任何可用内容")
}

func TestMatchCVWithJob_EmbeddingFailureNeverEscapes(t *testing.T) {
	emb := matchFixtureEmbedder()
	emb.err = assert.AnError
	engine, err := matcher.NewMatchEngine(emb)
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()
	result, err := engine.MatchCVWithJob(context.Background(), job, resume)

	require.NoError(t, err, "嵌入服务故障不是硬错误")
	require.NotNil(t, result)
	assert.Zero(t, result.MatchScore)
	assert.Zero(t, result.SkillMatchScore)
	assert.Zero(t, result.ExperienceMatchScore)
	assert.Equal(t, []string{"Python", "SQL"}, result.MissingSkills)
	assert.InDelta(t, 5.0, result.ExperienceAnalysis.TotalYears, 1e-9)
}

func TestMatchCVWithJob_NarrativeSuccess(t *testing.T) {
	narrative := &stubNarrative{text: "候选人技能覆盖良好"}
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder(),
		matcher.WithNarrativeAnalyzer(narrative))
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()
	result, err := engine.MatchCVWithJob(context.Background(), job, resume)
	require.NoError(t, err)

	assert.Equal(t, "候选人技能覆盖良好", result.Narrative)
	assert.InDelta(t, result.MatchScore, narrative.gotScore, 1e-9, "叙述分析应拿到已算出的综合分")
}

func TestMatchCVWithJob_NarrativeFailureYieldsEmpty(t *testing.T) {
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder(),
		matcher.WithNarrativeAnalyzer(&stubNarrative{err: assert.AnError}))
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()
	result, err := engine.MatchCVWithJob(context.Background(), job, resume)

	require.NoError(t, err, "叙述失败只降级为空串")
	assert.Empty(t, result.Narrative)
	assert.InDelta(t, 69.0, result.MatchScore, 1e-6, "数值分数不受叙述失败影响")
}

func TestMatchCVWithJob_NarrativeTimeout(t *testing.T) {
	narrative := &stubNarrative{text: "迟到的分析", delay: 500 * time.Millisecond}
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder(),
		matcher.WithNarrativeAnalyzer(narrative),
		matcher.WithNarrativeTimeout(20*time.Millisecond))
	require.NoError(t, err)

	job, resume := matchFixtureProfiles()
	start := time.Now()
	result, err := engine.MatchCVWithJob(context.Background(), job, resume)

	require.NoError(t, err)
	assert.Empty(t, result.Narrative, "超时后放弃叙述调用")
	assert.Less(t, time.Since(start), 400*time.Millisecond, "不应等到慢调用自然结束")
}

func TestMatchCVWithJob_SkillFallbackExtraction(t *testing.T) {
	// 岗位未给出结构化技能清单时，从描述文本中抽取含提示词的短语
	emb := newStubEmbedder(2, map[string][]float64{
		"solid Go skills": {1, 0},
	})
	engine, err := matcher.NewMatchEngine(emb)
	require.NoError(t, err)

	job := types.JobProfile{JobID: "job-002", Description: "solid Go skills"}
	resume := types.ResumeProfile{SubmissionUUID: "sub-002", Skills: []string{"solid Go skills"}}

	result, err := engine.MatchCVWithJob(context.Background(), job, resume)
	require.NoError(t, err)

	assert.Equal(t, []string{"solid Go skills"}, result.MatchedSkills)
	assert.InDelta(t, 100.0, result.SkillMatchScore, 1e-9)
}

func TestMatchCVWithJob_CancelledContext(t *testing.T) {
	engine, err := matcher.NewMatchEngine(matchFixtureEmbedder())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, resume := matchFixtureProfiles()
	result, err := engine.MatchCVWithJob(ctx, job, resume)

	assert.Nil(t, result, "取消的请求不返回部分结果")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMatchEngine_WeightValidation(t *testing.T) {
	_, err := matcher.NewMatchEngine(matchFixtureEmbedder(), matcher.WithScoreWeights(0.5, 0.3))
	assert.Error(t, err, "权重之和必须为1")

	_, err = matcher.NewMatchEngine(matchFixtureEmbedder(), matcher.WithScoreWeights(0.7, 0.3))
	assert.NoError(t, err)

	_, err = matcher.NewMatchEngine(nil)
	assert.Error(t, err)
}
