package matcher

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
)

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
// 实现必须保持输入顺序，逐条返回向量，空字符串也要产出向量而不是报错
type TextEmbedder interface {
	// EmbedStrings 将一批文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

// NarrativeAnalyzer 匹配叙述分析器接口
// 输出仅供展示，不参与数值计算；实现必须区分"调用失败"和"合法的空叙述"
type NarrativeAnalyzer interface {
	// Analyze 基于岗位描述、简历全文和已算出的综合分生成匹配分析文本
	Analyze(ctx context.Context, jobText string, resumeText string, precomputedScore float64) (string, error)
}
