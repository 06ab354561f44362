package matcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"cv-match-go/internal/constants"
	"cv-match-go/internal/types"
)

// ExperienceScorer 经历相关性打分器
// 聚合分数与逐条相关性共用同一批嵌入调用，失败时一律降级为0分/不相关
type ExperienceScorer struct {
	embedder  TextEmbedder
	threshold float64
	logger    *log.Logger
}

// ExperienceScorerOption 经历打分器的配置选项
type ExperienceScorerOption func(*ExperienceScorer)

// WithRelevanceThreshold 覆盖经历相关性的相似度门槛
func WithRelevanceThreshold(threshold float64) ExperienceScorerOption {
	return func(s *ExperienceScorer) {
		s.threshold = threshold
	}
}

// WithExperienceScorerLogger 设置经历打分器使用的日志记录器
func WithExperienceScorerLogger(logger *log.Logger) ExperienceScorerOption {
	return func(s *ExperienceScorer) {
		s.logger = logger
	}
}

// NewExperienceScorer 创建经历打分器实例
func NewExperienceScorer(embedder TextEmbedder, options ...ExperienceScorerOption) (*ExperienceScorer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("TextEmbedder 不能为空")
	}

	s := &ExperienceScorer{
		embedder:  embedder,
		threshold: constants.ExperienceRelevanceThreshold,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// MatchExperience 对照岗位描述为候选人的经历打分
//
// 聚合分: 所有经历描述按原顺序空格拼接成一段文本，与岗位描述的余弦相似度×100。
// 逐条相关性: 单条经历与岗位描述的相似度严格超过门槛时记入 RelevantExperience，
// 保持输入顺序。TotalYears 始终是各条目年限之和，与嵌入是否成功无关。
// 经历为空时分数为0；嵌入失败时分数降级为0并继续，绝不向上抛错。
func (s *ExperienceScorer) MatchExperience(ctx context.Context, jobDescription string, entries []types.ExperienceEntry) (float64, types.ExperienceAnalysis) {
	analysis := types.ExperienceAnalysis{
		RelevantExperience: []types.ExperienceEntry{},
	}
	for _, entry := range entries {
		if entry.DurationYears > 0 {
			analysis.TotalYears += entry.DurationYears
		}
	}

	if len(entries) == 0 {
		return 0, analysis
	}

	// 一次批量调用：0=岗位描述，1=聚合文本，2..=各条经历
	descriptions := make([]string, 0, len(entries))
	for _, entry := range entries {
		descriptions = append(descriptions, entry.Description)
	}
	texts := make([]string, 0, len(entries)+2)
	texts = append(texts, jobDescription, strings.Join(descriptions, " "))
	texts = append(texts, descriptions...)

	vecs, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		s.logger.Printf("经历嵌入失败，经历分降级为0: %v (返回 %d/%d)", err, len(vecs), len(texts))
		return 0, analysis
	}

	jobVec := vecs[0]

	aggregateSim, err := CosineSimilarity(jobVec, vecs[1])
	if err != nil {
		s.logger.Printf("聚合经历相似度计算失败，经历分降级为0: %v", err)
		aggregateSim = 0
	}

	for i, entry := range entries {
		sim, err := CosineSimilarity(jobVec, vecs[i+2])
		if err != nil {
			s.logger.Printf("第 %d 条经历相似度计算失败，按不相关处理: %v", i, err)
			continue
		}
		if sim > s.threshold {
			analysis.RelevantExperience = append(analysis.RelevantExperience, entry)
		}
	}

	return clampScore(aggregateSim * 100), analysis
}
