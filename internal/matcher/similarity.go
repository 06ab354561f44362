package matcher

import (
	"fmt"
	"math"
)

// CosineSimilarity 计算两个向量的余弦相似度，取值范围 [-1,1]
// 两个向量必须同维且非空，否则返回 ErrDimensionMismatch
// 任一向量为零向量时相似度定义为0
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// PairwiseMax 为每个行向量计算其与所有列向量的最大余弦相似度
// cols 为空时每行的最大值定义为0，不视作错误
// 某个向量对比较失败时，该对的相似度按0计入
func PairwiseMax(rows, cols [][]float64) []float64 {
	out := make([]float64, len(rows))
	if len(cols) == 0 {
		return out
	}

	for i, row := range rows {
		best := math.Inf(-1)
		for _, col := range cols {
			sim, err := CosineSimilarity(row, col)
			if err != nil {
				sim = 0
			}
			if sim > best {
				best = sim
			}
		}
		out[i] = best
	}
	return out
}

// clampScore 将百分制分数收敛到 [0,100]
func clampScore(score float64) float64 {
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
