package processor

import (
	"context"

	"cv-match-go/internal/matcher"

	"github.com/cloudwego/eino/components/embedding"
)

// precomputedEmbedder 包装真实的 TextEmbedder，对已知文本直接返回预计算向量。
// 用于把 Redis 中缓存的 JD 向量接入匹配引擎的嵌入路径，引擎对 JD 文本的
// 嵌入请求命中缓存向量，其余文本仍走真实的 embedder。
type precomputedEmbedder struct {
	inner matcher.TextEmbedder
	known map[string][]float64
}

// NewPrecomputedEmbedder 创建带预计算向量的 embedder 包装。
// known 为空时退化为直接透传。
func NewPrecomputedEmbedder(inner matcher.TextEmbedder, known map[string][]float64) matcher.TextEmbedder {
	if len(known) == 0 {
		return inner
	}
	return &precomputedEmbedder{inner: inner, known: known}
}

func (p *precomputedEmbedder) GetDimensions() int {
	return p.inner.GetDimensions()
}

// EmbedStrings 命中预计算向量的文本直接返回，未命中的批量转发给内层 embedder。
func (p *precomputedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	result := make([][]float64, len(texts))

	var missTexts []string
	var missIndexes []int
	for i, text := range texts {
		if vec, ok := p.known[text]; ok && len(vec) > 0 {
			result[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIndexes = append(missIndexes, i)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	innerVectors, err := p.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIndexes {
		if j < len(innerVectors) {
			result[idx] = innerVectors[j]
		}
	}
	return result, nil
}
