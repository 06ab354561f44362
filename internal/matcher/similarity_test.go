package matcher_test

import (
	"testing"

	"cv-match-go/internal/matcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	sim, err := matcher.CosineSimilarity([]float64{0.3, 0.5, 0.2}, []float64{0.3, 0.5, 0.2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9, "相同向量的相似度应为1")
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	sim, err := matcher.CosineSimilarity([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	sim, err := matcher.CosineSimilarity([]float64{1, 2}, []float64{-1, -2})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9, "反向向量允许出现负相似度")
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := matcher.CosineSimilarity([]float64{1, 0}, []float64{1, 0, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, matcher.ErrDimensionMismatch)
}

func TestCosineSimilarity_EmptyVectors(t *testing.T) {
	_, err := matcher.CosineSimilarity(nil, []float64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, matcher.ErrDimensionMismatch)

	_, err = matcher.CosineSimilarity([]float64{}, []float64{})
	require.Error(t, err, "双侧为空同样视作维度错误")
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	// 零向量没有方向，相似度定义为0而不是NaN
	sim, err := matcher.CosineSimilarity([]float64{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestPairwiseMax_BestPerRow(t *testing.T) {
	rows := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
	}
	cols := [][]float64{
		{1, 0, 0},
		{0, 4, 3},
	}

	best := matcher.PairwiseMax(rows, cols)
	require.Len(t, best, 2)
	assert.InDelta(t, 1.0, best[0], 1e-9)
	assert.InDelta(t, 0.8, best[1], 1e-9, "第二行的最佳相似度来自 (0,4,3)")
}

func TestPairwiseMax_EmptyCols(t *testing.T) {
	best := matcher.PairwiseMax([][]float64{{1, 0}, {0, 1}}, nil)
	assert.Equal(t, []float64{0, 0}, best, "没有列向量时每行最大值为0")
}

func TestPairwiseMax_BadPairCountsAsZero(t *testing.T) {
	rows := [][]float64{{1, 0}}
	cols := [][]float64{
		{1, 0, 0}, // 维度不符，该对按0计
		{-1, 0},
	}

	best := matcher.PairwiseMax(rows, cols)
	require.Len(t, best, 1)
	assert.InDelta(t, 0.0, best[0], 1e-9, "坏向量对按0参与取最大，不应让 -1 胜出")
}
