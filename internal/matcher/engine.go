package matcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"cv-match-go/internal/constants"
	"cv-match-go/internal/types"
)

// MatchEngine 人岗匹配引擎，核心的唯一公开入口
// 技能匹配与经历打分相互独立并发执行，叙述分析在数值分数算出后带超时地追加。
// 引擎本身无每请求可变状态，初始化后可被任意多个并发请求共用。
type MatchEngine struct {
	skills     *SkillMatcher
	experience *ExperienceScorer
	narrative  NarrativeAnalyzer

	narrativeTimeout   time.Duration
	skillWeight        float64
	experienceWeight   float64
	skillThreshold     float64
	relevanceThreshold float64
	modelVersion       string
	logger             *log.Logger
}

// EngineOption 匹配引擎的配置选项
type EngineOption func(*MatchEngine)

// WithNarrativeAnalyzer 注入叙述分析器；不注入时 narrative 恒为空字符串
func WithNarrativeAnalyzer(analyzer NarrativeAnalyzer) EngineOption {
	return func(e *MatchEngine) {
		e.narrative = analyzer
	}
}

// WithNarrativeTimeout 设置叙述分析调用的超时上限
func WithNarrativeTimeout(timeout time.Duration) EngineOption {
	return func(e *MatchEngine) {
		if timeout > 0 {
			e.narrativeTimeout = timeout
		}
	}
}

// WithScoreWeights 覆盖技能分和经历分的加权系数
func WithScoreWeights(skillWeight, experienceWeight float64) EngineOption {
	return func(e *MatchEngine) {
		e.skillWeight = skillWeight
		e.experienceWeight = experienceWeight
	}
}

// WithEngineSkillThreshold 覆盖技能对判定为匹配的相似度门槛
func WithEngineSkillThreshold(threshold float64) EngineOption {
	return func(e *MatchEngine) {
		e.skillThreshold = threshold
	}
}

// WithEngineRelevanceThreshold 覆盖经历条目判定为相关的相似度门槛
func WithEngineRelevanceThreshold(threshold float64) EngineOption {
	return func(e *MatchEngine) {
		e.relevanceThreshold = threshold
	}
}

// WithEmbeddingModelVersion 记录产生分数的嵌入模型版本，写入每个 MatchResult
func WithEmbeddingModelVersion(version string) EngineOption {
	return func(e *MatchEngine) {
		e.modelVersion = version
	}
}

// WithEngineLogger 设置引擎使用的日志记录器
func WithEngineLogger(logger *log.Logger) EngineOption {
	return func(e *MatchEngine) {
		e.logger = logger
	}
}

// NewMatchEngine 创建匹配引擎，技能匹配器与经历打分器共享同一个嵌入器
func NewMatchEngine(embedder TextEmbedder, options ...EngineOption) (*MatchEngine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("TextEmbedder 不能为空")
	}

	engine := &MatchEngine{
		narrativeTimeout:   constants.DefaultNarrativeTimeout,
		skillWeight:        constants.SkillScoreWeight,
		experienceWeight:   constants.ExperienceScoreWeight,
		skillThreshold:     constants.SkillMatchThreshold,
		relevanceThreshold: constants.ExperienceRelevanceThreshold,
		logger:             log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(engine)
	}

	if math.Abs(engine.skillWeight+engine.experienceWeight-1.0) > 1e-9 {
		return nil, fmt.Errorf("分数权重之和必须为1, 实际 %.6f", engine.skillWeight+engine.experienceWeight)
	}

	var err error
	engine.skills, err = NewSkillMatcher(embedder,
		WithSkillMatchThreshold(engine.skillThreshold),
		WithSkillMatcherLogger(engine.logger))
	if err != nil {
		return nil, fmt.Errorf("创建技能匹配器失败: %w", err)
	}
	engine.experience, err = NewExperienceScorer(embedder,
		WithRelevanceThreshold(engine.relevanceThreshold),
		WithExperienceScorerLogger(engine.logger))
	if err != nil {
		return nil, fmt.Errorf("创建经历打分器失败: %w", err)
	}

	return engine, nil
}

// MatchCVWithJob 为一对 (岗位, 简历) 计算完整的匹配结果
//
// 流程: 校验输入 → 解析两侧技能集合（结构化字段优先，否则从文本抽取）→
// 并发执行技能匹配与经历打分 → 加权合成综合分 → 带超时地请求叙述分析 →
// 组装 MatchResult。子组件失败只降级对应子分数，唯一的硬错误是输入完全无效
// (ErrInvalidProfile)。固定嵌入器与叙述提供方时本方法幂等。
// 请求被取消时不返回部分结果。
func (e *MatchEngine) MatchCVWithJob(ctx context.Context, job types.JobProfile, resume types.ResumeProfile) (*types.MatchResult, error) {
	if err := validateProfiles(job, resume); err != nil {
		return nil, err
	}

	jobSkills := job.RequiredSkills
	if len(jobSkills) == 0 {
		jobSkills = ExtractSkillPhrases(job.Description)
	}
	cvSkills := resume.Skills
	if len(cvSkills) == 0 {
		cvSkills = ExtractSkillPhrases(resume.RawText)
	}

	var (
		wg          sync.WaitGroup
		skillDetail SkillMatchDetail
		expScore    float64
		expAnalysis types.ExperienceAnalysis
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		skillDetail = e.skills.MatchSkills(ctx, jobSkills, cvSkills)
	}()
	go func() {
		defer wg.Done()
		expScore, expAnalysis = e.experience.MatchExperience(ctx, job.Description, resume.ExperienceEntries)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	matchScore := clampScore(e.skillWeight*skillDetail.Score + e.experienceWeight*expScore)

	narrative := e.fetchNarrative(ctx, job, resume, matchScore)

	result := &types.MatchResult{
		MatchScore:            matchScore,
		SkillMatchScore:       skillDetail.Score,
		ExperienceMatchScore:  expScore,
		MatchedSkills:         skillDetail.Matched,
		MissingSkills:         skillDetail.Missing,
		ExperienceAnalysis:    expAnalysis,
		Narrative:             narrative,
		EmbeddingModelVersion: e.modelVersion,
	}

	e.logger.Printf("匹配完成 (岗位:%s, 简历:%s): 综合 %.2f, 技能 %.2f, 经历 %.2f, 匹配/缺失技能 %d/%d",
		job.JobID, resume.SubmissionUUID, result.MatchScore, result.SkillMatchScore,
		result.ExperienceMatchScore, len(result.MatchedSkills), len(result.MissingSkills))

	return result, nil
}

// fetchNarrative 带超时地获取叙述分析
// 失败或超时只产生空叙述，不影响已算出的数值分数；超时后放弃进行中的调用
func (e *MatchEngine) fetchNarrative(ctx context.Context, job types.JobProfile, resume types.ResumeProfile, matchScore float64) string {
	if e.narrative == nil {
		return ""
	}

	narrativeCtx, cancel := context.WithTimeout(ctx, e.narrativeTimeout)
	defer cancel()

	type narrativeResult struct {
		text string
		err  error
	}
	// 带缓冲，超时放弃后进行中的goroutine仍可无阻塞退出
	resultCh := make(chan narrativeResult, 1)

	go func() {
		text, err := e.narrative.Analyze(narrativeCtx, job.Description, resume.RawText, matchScore)
		resultCh <- narrativeResult{text: text, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			e.logger.Printf("%v", NewNarrativeError(job.JobID, resume.SubmissionUUID, r.err.Error()))
			return ""
		}
		return r.text
	case <-narrativeCtx.Done():
		e.logger.Printf("%v", NewNarrativeError(job.JobID, resume.SubmissionUUID, narrativeCtx.Err().Error()))
		return ""
	}
}

// validateProfiles 摄入层之后的最后一道防线：两侧都必须有可用内容
func validateProfiles(job types.JobProfile, resume types.ResumeProfile) error {
	if strings.TrimSpace(job.Description) == "" && len(job.RequiredSkills) == 0 {
		return NewInvalidProfileError(job.JobID, resume.SubmissionUUID, "岗位描述与要求技能均为空")
	}
	if strings.TrimSpace(resume.RawText) == "" && len(resume.Skills) == 0 && len(resume.ExperienceEntries) == 0 {
		return NewInvalidProfileError(job.JobID, resume.SubmissionUUID, "简历文本、技能与经历均为空")
	}
	return nil
}
