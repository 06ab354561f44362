package processor_test

import (
	"context"
	"errors"
	"testing"

	"cv-match-go/internal/processor"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEmbedder 记录每次透传到底层的文本，返回固定维度的向量
type recordingEmbedder struct {
	calls   [][]string
	vectors map[string][]float64
	err     error
}

func (r *recordingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	r.calls = append(r.calls, texts)
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = r.vectors[text]
	}
	return out, nil
}

func (r *recordingEmbedder) GetDimensions() int { return 3 }

func TestPrecomputedEmbedderAllHits(t *testing.T) {
	inner := &recordingEmbedder{}
	known := map[string][]float64{
		"职位描述A": {1, 0, 0},
		"职位描述B": {0, 1, 0},
	}
	embedder := processor.NewPrecomputedEmbedder(inner, known)

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"职位描述A", "职位描述B"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1, 0}, vectors[1])
	assert.Empty(t, inner.calls, "全命中时不应透传到底层模型")
}

func TestPrecomputedEmbedderPartialMiss(t *testing.T) {
	inner := &recordingEmbedder{
		vectors: map[string][]float64{
			"技能甲": {0, 0, 1},
			"技能乙": {0, 1, 1},
		},
	}
	known := map[string][]float64{"职位描述": {1, 1, 0}}
	embedder := processor.NewPrecomputedEmbedder(inner, known)

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"技能甲", "职位描述", "技能乙"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float64{0, 0, 1}, vectors[0])
	assert.Equal(t, []float64{1, 1, 0}, vectors[1], "命中项应按原始下标归位")
	assert.Equal(t, []float64{0, 1, 1}, vectors[2])

	require.Len(t, inner.calls, 1, "未命中项应合并成一次底层调用")
	assert.Equal(t, []string{"技能甲", "技能乙"}, inner.calls[0])
}

func TestPrecomputedEmbedderInnerError(t *testing.T) {
	wantErr := errors.New("embedding服务不可用")
	inner := &recordingEmbedder{err: wantErr}
	embedder := processor.NewPrecomputedEmbedder(inner, map[string][]float64{"命中": {1}})

	_, err := embedder.EmbedStrings(context.Background(), []string{"命中", "未命中"})
	assert.ErrorIs(t, err, wantErr)
}

func TestPrecomputedEmbedderEmptyKnown(t *testing.T) {
	inner := &recordingEmbedder{}
	embedder := processor.NewPrecomputedEmbedder(inner, nil)
	assert.Equal(t, inner, embedder, "空缓存时应直接返回底层实现")
}
