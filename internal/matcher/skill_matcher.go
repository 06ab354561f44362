package matcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"cv-match-go/internal/constants"
)

// SkillMatcher 基于嵌入相似度的技能匹配器
// 嵌入模型是进程级只读资源，同一实例可被多个并发匹配请求安全复用
type SkillMatcher struct {
	embedder  TextEmbedder
	threshold float64
	logger    *log.Logger
}

// SkillMatcherOption 技能匹配器的配置选项
type SkillMatcherOption func(*SkillMatcher)

// WithSkillMatchThreshold 覆盖技能匹配的相似度门槛
func WithSkillMatchThreshold(threshold float64) SkillMatcherOption {
	return func(m *SkillMatcher) {
		m.threshold = threshold
	}
}

// WithSkillMatcherLogger 设置技能匹配器使用的日志记录器
func WithSkillMatcherLogger(logger *log.Logger) SkillMatcherOption {
	return func(m *SkillMatcher) {
		m.logger = logger
	}
}

// NewSkillMatcher 创建技能匹配器实例
func NewSkillMatcher(embedder TextEmbedder, options ...SkillMatcherOption) (*SkillMatcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("TextEmbedder 不能为空")
	}

	m := &SkillMatcher{
		embedder:  embedder,
		threshold: constants.SkillMatchThreshold,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(m)
	}
	return m, nil
}

// SkillMatchDetail 技能维度的匹配明细
//
// Score 是对全部岗位技能的最佳相似度取平均后的连续分数，Matched/Missing 则按
// 硬门槛划分。两个视角可能不一致：一个最佳相似度0.79的岗位技能会大幅拉高
// Score，却仍被列入 Missing。这里沿用该双视角行为。
type SkillMatchDetail struct {
	// 连续平均分，0-100
	Score float64

	// 最佳相似度严格超过门槛的岗位技能，保持岗位技能的输入顺序
	Matched []string

	// 岗位技能中未匹配的部分，与 Matched 不相交且二者并集等于岗位技能集合
	Missing []string
}

// MatchSkills 将岗位要求技能与候选人技能逐一配对打分
// 任一侧为空时分数为0、全部岗位技能记为缺失；嵌入失败时同样降级为0而不是报错
func (m *SkillMatcher) MatchSkills(ctx context.Context, jobSkills, cvSkills []string) SkillMatchDetail {
	detail := SkillMatchDetail{
		Matched: []string{},
		Missing: append([]string{}, jobSkills...),
	}
	if len(jobSkills) == 0 || len(cvSkills) == 0 {
		return detail
	}

	jobVecs, cvVecs, err := m.embedBothSides(ctx, jobSkills, cvSkills)
	if err != nil {
		m.logger.Printf("技能嵌入失败，技能分降级为0: %v", err)
		return detail
	}

	bestPerJobSkill := PairwiseMax(jobVecs, cvVecs)

	var sum float64
	matched := []string{}
	missing := []string{}
	for i, skill := range jobSkills {
		sum += bestPerJobSkill[i]
		if bestPerJobSkill[i] > m.threshold {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}

	detail.Score = clampScore(sum / float64(len(jobSkills)) * 100)
	detail.Matched = matched
	detail.Missing = missing
	return detail
}

// embedBothSides 并行嵌入岗位技能与候选人技能，两侧互相独立、无共享可变状态
func (m *SkillMatcher) embedBothSides(ctx context.Context, jobSkills, cvSkills []string) ([][]float64, [][]float64, error) {
	var (
		wg      sync.WaitGroup
		jobVecs [][]float64
		cvVecs  [][]float64
		jobErr  error
		cvErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		jobVecs, jobErr = m.embedder.EmbedStrings(ctx, jobSkills)
	}()
	go func() {
		defer wg.Done()
		cvVecs, cvErr = m.embedder.EmbedStrings(ctx, cvSkills)
	}()
	wg.Wait()

	if jobErr != nil {
		return nil, nil, fmt.Errorf("岗位技能嵌入失败: %w", jobErr)
	}
	if cvErr != nil {
		return nil, nil, fmt.Errorf("候选人技能嵌入失败: %w", cvErr)
	}
	if len(jobVecs) != len(jobSkills) || len(cvVecs) != len(cvSkills) {
		return nil, nil, fmt.Errorf("%w: 嵌入结果数量与输入不符 (岗位 %d/%d, 候选人 %d/%d)",
			ErrEmbeddingUnavailable, len(jobVecs), len(jobSkills), len(cvVecs), len(cvSkills))
	}
	return jobVecs, cvVecs, nil
}

// IsSkillMatch 判断两个技能短语是否等价，复用同一相似度门槛（严格大于）
// 嵌入失败时按不匹配处理
func (m *SkillMatcher) IsSkillMatch(ctx context.Context, skillA, skillB string) bool {
	vecs, err := m.embedder.EmbedStrings(ctx, []string{skillA, skillB})
	if err != nil || len(vecs) != 2 {
		m.logger.Printf("技能对嵌入失败 (%q vs %q): %v", skillA, skillB, err)
		return false
	}

	sim, err := CosineSimilarity(vecs[0], vecs[1])
	if err != nil {
		m.logger.Printf("技能对相似度计算失败 (%q vs %q): %v", skillA, skillB, err)
		return false
	}
	return sim > m.threshold
}
