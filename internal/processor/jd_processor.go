package processor

import (
	"context"
	"fmt"
	"log"
	"os"

	"cv-match-go/internal/matcher"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// JDProcessor 负责处理与岗位描述 (JD) 相关的任务，主要是文本向量化。
type JDProcessor struct {
	embedder       matcher.TextEmbedder
	storage        *storage.Storage
	embeddingModel string
	logger         *log.Logger
}

// JDOption 配置 JDProcessor 的函数选项
type JDOption func(*JDProcessor)

// WithJDLogger 设置自定义logger
func WithJDLogger(logger *log.Logger) JDOption {
	return func(p *JDProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewJDProcessor 创建一个新的 JDProcessor 实例。
func NewJDProcessor(embedder matcher.TextEmbedder, storage *storage.Storage, embeddingModel string, options ...JDOption) (*JDProcessor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("TextEmbedder 不能为空")
	}
	if storage == nil {
		return nil, fmt.Errorf("Storage 不能为空")
	}
	if embeddingModel == "" {
		return nil, fmt.Errorf("embeddingModel 不能为空")
	}

	p := &JDProcessor{
		embedder:       embedder,
		storage:        storage,
		embeddingModel: embeddingModel,
		logger:         log.New(os.Stdout, "[JDProcessor] ", log.LstdFlags|log.Lshortfile),
	}

	for _, option := range options {
		option(p)
	}

	return p, nil
}

// GetJobDescriptionVector 将 JD 文本转换为查询向量。
// 先尝试从 Redis 缓存获取，未命中或模型版本不匹配则重新计算并回填缓存。
// 缓存读写失败只降级为日志，向量生成是核心路径。
func (p *JDProcessor) GetJobDescriptionVector(ctx context.Context, jobID string, jdText string) ([]float64, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID 不能为空")
	}
	if jdText == "" {
		return nil, fmt.Errorf("JD 文本不能为空")
	}

	ctx, span := tracer.Start(ctx, "GetJobDescriptionVector")
	defer span.End()
	span.SetAttributes(
		attribute.String("job_id", jobID),
		attribute.String("embedding.model", p.embeddingModel),
	)

	// 1. 尝试从 Redis 缓存获取
	if p.storage.Redis != nil {
		cachedVector, modelVersion, err := p.storage.Redis.GetJobVector(ctx, jobID)
		if err == nil && len(cachedVector) > 0 {
			if modelVersion == p.embeddingModel {
				p.logger.Printf("从 Redis 缓存命中 JD 向量 for JobID: %s, Model: %s", jobID, modelVersion)
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return cachedVector, nil
			}
			p.logger.Printf("Redis 缓存中的 JD 向量模型版本不匹配 (缓存: %s, 当前: %s)，将重新生成", modelVersion, p.embeddingModel)
		} else if err != nil {
			p.logger.Printf("从 Redis 获取 JD 向量失败 for JobID: %s, Error: %v. 将继续生成新向量", jobID, err)
		}
	}

	// 2. 缓存未命中，调用 embedder 进行向量化
	span.SetAttributes(attribute.Bool("cache.hit", false))
	vectors, err := p.embedder.EmbedStrings(ctx, []string{jdText})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, fmt.Errorf("JD 文本向量化失败: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		err := fmt.Errorf("JD 文本向量化结果为空")
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	newVector := vectors[0]
	p.logger.Printf("JD 文本向量生成成功 for JobID: %s，向量维度: %d", jobID, len(newVector))

	// 3. 将新生成的向量存入 Redis 缓存
	if p.storage.Redis != nil {
		if err := p.storage.Redis.SetJobVector(ctx, jobID, newVector, p.embeddingModel); err != nil {
			p.logger.Printf("将 JD 向量存入 Redis 失败 for JobID: %s: %v", jobID, err)
		}
	}

	span.SetStatus(codes.Ok, "")
	return newVector, nil
}
