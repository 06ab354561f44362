package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/constants"
	"cv-match-go/internal/logger"
	"cv-match-go/internal/matcher"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/storage/models"
	"cv-match-go/internal/tracing"
	"cv-match-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("cv-match-go/processor")

// MatchService 人岗匹配服务，消费匹配事件并编排一次完整的匹配计算:
// 加载岗位与简历画像、复用缓存的JD向量、调用匹配引擎、落库并回填缓存。
type MatchService struct {
	cfg            *config.Config
	storage        *storage.Storage
	embedder       matcher.TextEmbedder
	narrative      matcher.NarrativeAnalyzer
	jdProcessor    *JDProcessor
	profileBuilder *ProfileBuilder
	logger         *zerolog.Logger
}

// NewMatchService 创建匹配服务
// narrative 可以为 nil，此时所有匹配结果的叙述字段为空
func NewMatchService(cfg *config.Config, storageManager *storage.Storage, embedder matcher.TextEmbedder, narrative matcher.NarrativeAnalyzer, zlog *zerolog.Logger) (*MatchService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if storageManager == nil {
		return nil, ErrStorageNotInit
	}
	if embedder == nil {
		return nil, fmt.Errorf("TextEmbedder 不能为空")
	}
	if zlog == nil {
		nop := zerolog.Nop()
		zlog = &nop
	}

	jdProcessor, err := NewJDProcessor(embedder, storageManager, cfg.Aliyun.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("创建JDProcessor失败: %w", err)
	}

	return &MatchService{
		cfg:            cfg,
		storage:        storageManager,
		embedder:       embedder,
		narrative:      narrative,
		jdProcessor:    jdProcessor,
		profileBuilder: NewProfileBuilder(nil),
		logger:         zlog,
	}, nil
}

// HandleMatchNeeded 处理一条匹配事件消息
// 返回 nil 时消息被确认；返回错误时消息重新入队
func (s *MatchService) HandleMatchNeeded(ctx context.Context, message storage.MatchNeededMessage) error {
	ctx, span := tracer.Start(ctx, "HandleMatchNeeded",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("submission_uuid", message.SubmissionUUID),
		attribute.String("job_id", message.JobID),
		attribute.Bool("force", message.Force),
	)

	ctx = logger.WithSubmissionUUID(ctx, message.SubmissionUUID)
	ctx = logger.WithJobID(ctx, message.JobID)
	log := logger.FromContext(ctx)

	log.Debug().Msg("开始处理匹配事件")

	if s.storage.MySQL == nil {
		tracing.RecordError(span, ErrStorageNotInit, tracing.ErrorTypeInternal)
		return ErrStorageNotInit
	}

	// 状态门控放在事务里，行锁防止同一提交被并发匹配
	var skip bool
	err := s.storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission models.ResumeSubmission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("submission_uuid = ?", message.SubmissionUUID).
			First(&submission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Info().Msg("ResumeSubmission记录未找到，确认消息并跳过")
				skip = true
				return nil
			}
			return fmt.Errorf("获取ResumeSubmission记录失败: %w", err)
		}

		if !message.Force && !constants.IsStatusAllowed(submission.ProcessingStatus, constants.AllowedStatusesForMatch) {
			log.Debug().Str("current_status", submission.ProcessingStatus).Msg("状态不允许匹配，跳过")
			span.SetAttributes(
				attribute.String("skipped_reason", "invalid_status"),
				attribute.String("current_status", submission.ProcessingStatus),
			)
			skip = true
			return nil
		}

		return tx.Model(&submission).Update("processing_status", constants.StatusMatchPending).Error
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}
	if skip {
		return nil
	}

	result, err := s.ExecuteMatch(ctx, message.JobID, message.SubmissionUUID)
	if err != nil {
		if errors.Is(err, matcher.ErrInvalidProfile) {
			tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		} else {
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		}
		if updateErr := s.storage.MySQL.UpdateResumeProcessingStatus(ctx, message.SubmissionUUID, constants.StatusMatchFailed); updateErr != nil {
			log.Error().Err(updateErr).Msg("更新状态为MATCH_FAILED失败")
		}
		// 无效画像是永久性失败，重试不会有结果，确认消息
		if errors.Is(err, matcher.ErrInvalidProfile) || errors.Is(err, ErrJobNotFound) {
			log.Warn().Err(err).Msg("匹配输入无效，确认消息不再重试")
			return nil
		}
		return err
	}

	if err := s.storage.MySQL.UpdateResumeProcessingStatus(ctx, message.SubmissionUUID, constants.StatusMatched); err != nil {
		log.Error().Err(err).Msg("更新状态为MATCHED失败")
	}

	span.SetAttributes(attribute.Float64("match.score", result.MatchScore))
	span.SetStatus(codes.Ok, "匹配成功")
	log.Info().
		Float64("match_score", result.MatchScore).
		Float64("skill_score", result.SkillMatchScore).
		Float64("experience_score", result.ExperienceMatchScore).
		Msg("匹配事件处理完成")
	return nil
}

// ExecuteMatch 对一对 (岗位, 简历) 执行完整的匹配计算并持久化结果。
// API同步触发与消息消费共用此入口。
func (s *MatchService) ExecuteMatch(ctx context.Context, jobID, submissionUUID string) (*types.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "ExecuteMatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", jobID),
		attribute.String("submission_uuid", submissionUUID),
	)

	log := logger.FromContext(ctx)

	jobProfile, err := s.loadJobProfile(ctx, jobID)
	if err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeDB,
			attribute.String("error.stage", "load_job"))
		return nil, err
	}

	resumeProfile, err := s.loadResumeProfile(ctx, submissionUUID)
	if err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeDB,
			attribute.String("error.stage", "load_resume"))
		return nil, err
	}

	// 预取缓存的JD向量，命中后通过包装embedder注入引擎的嵌入路径
	// 失败只降级为现场计算
	known := make(map[string][]float64)
	if jobProfile.Description != "" {
		if jdVector, err := s.jdProcessor.GetJobDescriptionVector(ctx, jobID, jobProfile.Description); err == nil {
			known[jobProfile.Description] = jdVector
		} else {
			log.Warn().Err(err).Msg("JD向量预取失败，匹配时将现场计算")
		}
	}

	engine, err := s.buildEngine(NewPrecomputedEmbedder(s.embedder, known))
	if err != nil {
		return nil, fmt.Errorf("创建匹配引擎失败: %w", err)
	}

	result, err := engine.MatchCVWithJob(ctx, jobProfile, resumeProfile)
	if err != nil {
		return nil, err
	}

	if err := s.persistMatchResult(ctx, jobID, submissionUUID, result); err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeDB,
			attribute.String("error.stage", "persist_result"))
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// buildEngine 按配置组装匹配引擎
func (s *MatchService) buildEngine(embedder matcher.TextEmbedder) (*matcher.MatchEngine, error) {
	options := []matcher.EngineOption{
		matcher.WithScoreWeights(s.cfg.Matcher.SkillScoreWeight, s.cfg.Matcher.ExperienceScoreWeight),
		matcher.WithEngineSkillThreshold(s.cfg.Matcher.SkillMatchThreshold),
		matcher.WithEngineRelevanceThreshold(s.cfg.Matcher.ExperienceRelevanceThreshold),
		matcher.WithEmbeddingModelVersion(s.cfg.Aliyun.Embedding.Model),
		matcher.WithEngineLogger(log.New(logger.Logger, "[MatchEngine] ", 0)),
	}
	if s.narrative != nil && s.cfg.Narrative.Enabled {
		options = append(options,
			matcher.WithNarrativeAnalyzer(s.narrative),
			matcher.WithNarrativeTimeout(s.cfg.NarrativeTimeout()),
		)
	}
	return matcher.NewMatchEngine(embedder, options...)
}

// loadJobProfile 从MySQL加载岗位并转成引擎输入
func (s *MatchService) loadJobProfile(ctx context.Context, jobID string) (types.JobProfile, error) {
	job, err := s.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.JobProfile{}, NewMatchError("", jobID, "岗位记录不存在", ErrJobNotFound)
		}
		return types.JobProfile{}, fmt.Errorf("查询岗位失败: %w", err)
	}

	profile := types.JobProfile{
		JobID:       job.JobID,
		Title:       job.JobTitle,
		Company:     job.Company,
		Description: job.JobDescriptionText,
	}
	if len(job.RequiredSkillsJSON) > 0 {
		if err := json.Unmarshal(job.RequiredSkillsJSON, &profile.RequiredSkills); err != nil {
			// 技能JSON损坏时退回从描述抽取，匹配仍可进行
			logger.FromContext(ctx).Warn().Err(err).Str("job_id", jobID).Msg("岗位技能JSON反序列化失败")
		}
	}
	return profile, nil
}

// loadResumeProfile 加载简历画像
// 已有结构化画像直接用；否则从MinIO取解析文本现场构建并回写画像
func (s *MatchService) loadResumeProfile(ctx context.Context, submissionUUID string) (types.ResumeProfile, error) {
	log := logger.FromContext(ctx)

	submission, err := s.storage.MySQL.GetResumeSubmission(ctx, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ResumeProfile{}, NewMatchError(submissionUUID, "", "简历提交记录不存在", ErrProfileNotReady)
		}
		return types.ResumeProfile{}, fmt.Errorf("查询简历提交记录失败: %w", err)
	}

	if len(submission.ProfileJSON) > 0 {
		var profile types.ResumeProfile
		if err := json.Unmarshal(submission.ProfileJSON, &profile); err == nil && profile.RawText != "" {
			profile.SubmissionUUID = submissionUUID
			return profile, nil
		}
		log.Warn().Msg("简历画像JSON不可用，将从解析文本重建")
	}

	if submission.ParsedTextPathOSS == "" || s.storage.MinIO == nil {
		return types.ResumeProfile{}, NewMatchError(submissionUUID, "", "既无画像也无解析文本", ErrProfileNotReady)
	}

	rawText, err := s.storage.MinIO.GetParsedText(ctx, submission.ParsedTextPathOSS)
	if err != nil {
		return types.ResumeProfile{}, NewDownloadError(submissionUUID, err.Error())
	}

	profile := s.profileBuilder.BuildFromText(submissionUUID, rawText)

	// 回写画像，下次匹配不再重建；失败不影响本次匹配
	if profileJSON, err := models.MarshalToJSON(profile); err == nil {
		if err := s.storage.MySQL.UpdateResumeSubmissionFields(ctx, submissionUUID, map[string]interface{}{
			"profile_json": profileJSON,
		}); err != nil {
			log.Warn().Err(err).Msg("回写简历画像失败")
		}
	}

	return profile, nil
}

// persistMatchResult 将匹配结果写入MySQL并回填Redis缓存
func (s *MatchService) persistMatchResult(ctx context.Context, jobID, submissionUUID string, result *types.MatchResult) error {
	matchedJSON, err := models.MarshalToJSON(result.MatchedSkills)
	if err != nil {
		return fmt.Errorf("序列化匹配技能失败: %w", err)
	}
	missingJSON, err := models.MarshalToJSON(result.MissingSkills)
	if err != nil {
		return fmt.Errorf("序列化缺失技能失败: %w", err)
	}
	analysisJSON, err := models.MarshalToJSON(result.ExperienceAnalysis)
	if err != nil {
		return fmt.Errorf("序列化经历分析失败: %w", err)
	}

	record := &models.JobResumeMatch{
		SubmissionUUID:         submissionUUID,
		JobID:                  jobID,
		MatchScore:             result.MatchScore,
		SkillMatchScore:        result.SkillMatchScore,
		ExperienceMatchScore:   result.ExperienceMatchScore,
		MatchedSkillsJSON:      matchedJSON,
		MissingSkillsJSON:      missingJSON,
		ExperienceAnalysisJSON: analysisJSON,
		Narrative:              result.Narrative,
		EmbeddingModelVersion:  result.EmbeddingModelVersion,
		EvaluatedAt:            time.Now(),
	}

	if err := s.storage.MySQL.SaveMatchResult(ctx, record); err != nil {
		return fmt.Errorf("保存匹配结果失败: %w", err)
	}

	// 缓存失败只降级为日志，MySQL才是持久层
	if s.storage.Redis != nil {
		if err := s.storage.Redis.SetMatchResult(ctx, jobID, submissionUUID, result, s.storage.Redis.GetJobVectorExpireDuration()); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("回填匹配结果缓存失败")
		}
	}

	return nil
}

// GetMatchResult 读取一条匹配结果，先查Redis缓存，未命中回源MySQL
func (s *MatchService) GetMatchResult(ctx context.Context, jobID, submissionUUID string) (*types.MatchResult, error) {
	if s.storage.Redis != nil {
		if cached, err := s.storage.Redis.GetMatchResult(ctx, jobID, submissionUUID); err == nil {
			return cached, nil
		}
	}

	record, err := s.storage.MySQL.GetMatchResult(ctx, jobID, submissionUUID)
	if err != nil {
		return nil, err
	}
	return matchRecordToResult(record)
}

// matchRecordToResult 将数据库记录还原为 MatchResult
func matchRecordToResult(record *models.JobResumeMatch) (*types.MatchResult, error) {
	result := &types.MatchResult{
		MatchScore:            record.MatchScore,
		SkillMatchScore:       record.SkillMatchScore,
		ExperienceMatchScore:  record.ExperienceMatchScore,
		Narrative:             record.Narrative,
		EmbeddingModelVersion: record.EmbeddingModelVersion,
	}
	if len(record.MatchedSkillsJSON) > 0 {
		if err := json.Unmarshal(record.MatchedSkillsJSON, &result.MatchedSkills); err != nil {
			return nil, fmt.Errorf("反序列化匹配技能失败: %w", err)
		}
	}
	if len(record.MissingSkillsJSON) > 0 {
		if err := json.Unmarshal(record.MissingSkillsJSON, &result.MissingSkills); err != nil {
			return nil, fmt.Errorf("反序列化缺失技能失败: %w", err)
		}
	}
	if len(record.ExperienceAnalysisJSON) > 0 {
		if err := json.Unmarshal(record.ExperienceAnalysisJSON, &result.ExperienceAnalysis); err != nil {
			return nil, fmt.Errorf("反序列化经历分析失败: %w", err)
		}
	}
	return result, nil
}
