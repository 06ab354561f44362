package matcher_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"cv-match-go/internal/matcher"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder 按文本查表返回固定向量的测试嵌入器
// 未注册的文本返回零向量（与任何向量的相似度都是0）
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	dims    int
	err     error
	calls   int
}

func newStubEmbedder(dims int, vectors map[string][]float64) *stubEmbedder {
	return &stubEmbedder{vectors: vectors, dims: dims}
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if vec, ok := s.vectors[text]; ok {
			out = append(out, vec)
		} else {
			out = append(out, make([]float64, s.dims))
		}
	}
	return out, nil
}

func (s *stubEmbedder) GetDimensions() int {
	return s.dims
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestMatchSkills_ContinuousScoreAndThreshold(t *testing.T) {
	// Python 完全命中(1.0)，SQL 的最佳相似度只有0.3:
	// 连续分 = (1.0+0.3)/2*100 = 65，门槛视角下 SQL 仍记为缺失
	emb := newStubEmbedder(3, map[string][]float64{
		"Python": {1, 0, 0},
		"SQL":    {0, 1, 0},
		"Excel":  {0, 0.3, math.Sqrt(0.91)},
	})
	m, err := matcher.NewSkillMatcher(emb)
	require.NoError(t, err)

	detail := m.MatchSkills(context.Background(), []string{"Python", "SQL"}, []string{"Python", "Excel"})

	assert.InDelta(t, 65.0, detail.Score, 1e-9)
	assert.Equal(t, []string{"Python"}, detail.Matched)
	assert.Equal(t, []string{"SQL"}, detail.Missing)
}

func TestMatchSkills_ThresholdIsStrict(t *testing.T) {
	// (1,0,0) 与 (4,3,0) 的相似度恰好等于0.8，严格大于的门槛下仍是缺失
	emb := newStubEmbedder(3, map[string][]float64{
		"Go":     {1, 0, 0},
		"Golang": {4, 3, 0},
	})
	m, err := matcher.NewSkillMatcher(emb)
	require.NoError(t, err)

	detail := m.MatchSkills(context.Background(), []string{"Go"}, []string{"Golang"})

	assert.InDelta(t, 80.0, detail.Score, 1e-9, "连续分照常吸收0.8的相似度")
	assert.Empty(t, detail.Matched)
	assert.Equal(t, []string{"Go"}, detail.Missing, "等于门槛不算匹配")
}

func TestMatchSkills_EmptySides(t *testing.T) {
	emb := newStubEmbedder(3, nil)
	m, err := matcher.NewSkillMatcher(emb)
	require.NoError(t, err)

	detail := m.MatchSkills(context.Background(), nil, []string{"Go"})
	assert.Zero(t, detail.Score)
	assert.Empty(t, detail.Missing)

	detail = m.MatchSkills(context.Background(), []string{"Go", "SQL"}, nil)
	assert.Zero(t, detail.Score)
	assert.Equal(t, []string{"Go", "SQL"}, detail.Missing, "候选技能为空时全部岗位技能记为缺失")

	assert.Zero(t, emb.callCount(), "任一侧为空时不应调用嵌入服务")
}

func TestMatchSkills_EmbeddingFailureDegradesToZero(t *testing.T) {
	emb := newStubEmbedder(3, nil)
	emb.err = assert.AnError
	m, err := matcher.NewSkillMatcher(emb)
	require.NoError(t, err)

	detail := m.MatchSkills(context.Background(), []string{"Go"}, []string{"Go"})

	assert.Zero(t, detail.Score, "嵌入失败只降级，不向上抛错")
	assert.Empty(t, detail.Matched)
	assert.Equal(t, []string{"Go"}, detail.Missing)
}

func TestMatchSkills_NegativeSimilarityClampedToZero(t *testing.T) {
	emb := newStubEmbedder(2, map[string][]float64{
		"Go":    {1, 0},
		"Sales": {-1, 0},
	})
	m, err := matcher.NewSkillMatcher(emb)
	require.NoError(t, err)

	detail := m.MatchSkills(context.Background(), []string{"Go"}, []string{"Sales"})

	assert.Zero(t, detail.Score, "负的平均相似度收敛到0分")
}

func TestMatchSkills_CustomThreshold(t *testing.T) {
	emb := newStubEmbedder(3, map[string][]float64{
		"Go":     {1, 0, 0},
		"Golang": {4, 3, 0},
	})
	m, err := matcher.NewSkillMatcher(emb, matcher.WithSkillMatchThreshold(0.7))
	require.NoError(t, err)

	detail := m.MatchSkills(context.Background(), []string{"Go"}, []string{"Golang"})

	assert.Equal(t, []string{"Go"}, detail.Matched, "0.8的相似度在0.7门槛下应判为匹配")
}

func TestNewSkillMatcher_NilEmbedder(t *testing.T) {
	_, err := matcher.NewSkillMatcher(nil)
	assert.Error(t, err)
}

func TestIsSkillMatch(t *testing.T) {
	emb := newStubEmbedder(3, map[string][]float64{
		"Golang":     {1, 0, 0},
		"Go":         {0.99, 0.1, 0},
		"Accounting": {0, 0, 1},
	})
	m, err := matcher.NewSkillMatcher(emb)
	require.NoError(t, err)

	assert.True(t, m.IsSkillMatch(context.Background(), "Golang", "Go"))
	assert.False(t, m.IsSkillMatch(context.Background(), "Golang", "Accounting"))

	emb.err = assert.AnError
	assert.False(t, m.IsSkillMatch(context.Background(), "Golang", "Go"), "嵌入失败按不匹配处理")
}
