package processor

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"cv-match-go/internal/config"
	"cv-match-go/internal/constants"
	"cv-match-go/internal/logger"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/storage/models"
	"cv-match-go/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// PDFTextExtractor 简历文本提取接口
type PDFTextExtractor interface {
	ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string, extraMeta map[string]interface{}) (string, map[string]interface{}, error)
}

// ResumeService 简历摄入服务
// 消费上传事件: 下载原始文件、提取文本、构建画像、触发匹配
type ResumeService struct {
	cfg            *config.Config
	storage        *storage.Storage
	extractor      PDFTextExtractor
	profileBuilder *ProfileBuilder
	logger         *zerolog.Logger
}

// NewResumeService 创建简历摄入服务
func NewResumeService(cfg *config.Config, storageManager *storage.Storage, extractor PDFTextExtractor, zlog *zerolog.Logger) (*ResumeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if storageManager == nil {
		return nil, ErrStorageNotInit
	}
	if extractor == nil {
		return nil, ErrExtractorNotInit
	}
	if zlog == nil {
		nop := zerolog.Nop()
		zlog = &nop
	}

	return &ResumeService{
		cfg:            cfg,
		storage:        storageManager,
		extractor:      extractor,
		profileBuilder: NewProfileBuilder(nil),
		logger:         zlog,
	}, nil
}

// ProcessUploadedResume 处理一条简历上传事件
// 成功后简历状态转为 PARSED，有目标岗位时同时发布匹配事件
func (rs *ResumeService) ProcessUploadedResume(ctx context.Context, message storage.ResumeUploadedMessage) error {
	ctx, span := tracer.Start(ctx, "ProcessUploadedResume",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("submission_uuid", message.SubmissionUUID),
		attribute.String("target_job_id", message.TargetJobID),
	)

	ctx = logger.WithSubmissionUUID(ctx, message.SubmissionUUID)
	log := logger.FromContext(ctx)

	log.Debug().Msg("开始处理上传的简历")

	if rs.storage.MySQL == nil || rs.storage.MinIO == nil {
		tracing.RecordError(span, ErrStorageNotInit, tracing.ErrorTypeInternal)
		return ErrStorageNotInit
	}

	var textObjectKey string
	err := rs.storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 更新初始状态
		if err := tx.Model(&models.ResumeSubmission{}).
			Where("submission_uuid = ?", message.SubmissionUUID).
			Update("processing_status", constants.StatusPendingParsing).Error; err != nil {
			return NewUpdateError(message.SubmissionUUID, fmt.Sprintf("更新状态为%s失败: %v", constants.StatusPendingParsing, err))
		}

		// 2. 下载并提取文本
		ctx, parseSpan := tracer.Start(ctx, "ExtractResumeText")
		text, err := rs.extractResumeText(ctx, message)
		parseSpan.End()
		if err != nil {
			return err
		}

		// 3. 上传解析后的文本到MinIO
		span.AddEvent("uploading_parsed_text")
		textObjectKey, err = rs.storage.MinIO.UploadParsedText(ctx, message.SubmissionUUID, text)
		if err != nil {
			return NewStoreError(message.SubmissionUUID, err.Error())
		}
		log.Debug().Str("object_key", textObjectKey).Msg("解析文本已上传到MinIO")

		// 4. 构建结构化画像
		profile := rs.profileBuilder.BuildFromText(message.SubmissionUUID, text)
		profileJSON, err := models.MarshalToJSON(profile)
		if err != nil {
			return fmt.Errorf("序列化简历画像失败: %w", err)
		}
		span.SetAttributes(
			attribute.Int("profile.skills", len(profile.Skills)),
			attribute.Int("profile.experience_entries", len(profile.ExperienceEntries)),
		)

		// 5. 更新数据库记录
		if err := tx.Model(&models.ResumeSubmission{}).
			Where("submission_uuid = ?", message.SubmissionUUID).
			Updates(map[string]interface{}{
				"parsed_text_path_oss": textObjectKey,
				"profile_json":         profileJSON,
				"processing_status":    constants.StatusParsed,
			}).Error; err != nil {
			return NewUpdateError(message.SubmissionUUID, err.Error())
		}

		return nil
	})

	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		if updateErr := rs.storage.MySQL.UpdateResumeProcessingStatus(ctx, message.SubmissionUUID, constants.StatusParsingFailed); updateErr != nil {
			log.Error().Err(updateErr).Msg("更新状态为PARSING_FAILED失败")
		}
		// 解析失败时释放去重记录，允许同一文件修复后重新提交
		if message.RawFileMD5 != "" && rs.storage.Redis != nil {
			if removeErr := rs.storage.Redis.RemoveRawFileMD5(ctx, message.RawFileMD5); removeErr != nil {
				log.Warn().Err(removeErr).Msg("回滚文件MD5去重记录失败")
			}
		}
		return err
	}

	// 6. 事务提交后再发布解析完成事件，发布不能放在事务里:
	// 网络IO会拖住数据库连接，发布失败也不该回滚已经成功的解析
	if rs.storage.RabbitMQ != nil {
		parsedMsg := storage.ResumeParsedMessage{
			SubmissionUUID:    message.SubmissionUUID,
			TargetJobID:       message.TargetJobID,
			ParsedTextPathOSS: textObjectKey,
			ProcessingStatus:  constants.StatusParsed,
		}
		if err := rs.publishParsedEvent(ctx, rs.storage.RabbitMQ, parsedMsg); err != nil {
			// 解析结果已落库，消息重新入队后补发的是事件，不动去重记录
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
			log.Error().Err(err).Msg("发布解析完成事件失败")
			return err
		}
	}

	span.SetStatus(codes.Ok, "处理成功")
	log.Info().Msg("上传任务处理成功完成")
	return nil
}

// publishParsedEvent 发布解析完成事件，是否触发匹配由下游消费者决定
func (rs *ResumeService) publishParsedEvent(ctx context.Context, mq storage.MessageQueue, msg storage.ResumeParsedMessage) error {
	if err := mq.PublishJSON(ctx, rs.cfg.RabbitMQ.ResumeEventsExchange, rs.cfg.RabbitMQ.ParsedRoutingKey, msg, true); err != nil {
		return NewPublishError(msg.SubmissionUUID, err.Error())
	}
	return nil
}

// extractResumeText 下载原始文件并提取纯文本
func (rs *ResumeService) extractResumeText(ctx context.Context, message storage.ResumeUploadedMessage) (string, error) {
	log := logger.FromContext(ctx)
	span := trace.SpanFromContext(ctx)

	originalFileBytes, err := rs.storage.MinIO.GetResumeFile(ctx, message.OriginalFilePathOSS)
	if err != nil {
		log.Error().Err(err).Msg("从MinIO下载简历失败")
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeExternal,
			attribute.String("error.stage", "download"))
		return "", NewDownloadError(message.SubmissionUUID, err.Error())
	}
	span.SetAttributes(attribute.Int("file_size_bytes", len(originalFileBytes)))

	text, _, err := rs.extractor.ExtractTextFromReader(ctx, bytes.NewReader(originalFileBytes), message.OriginalFilePathOSS, nil)
	if err != nil {
		log.Error().Err(err).Msg("提取简历文本失败")
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeInternal,
			attribute.String("error.stage", "extract"))
		return "", NewParseError(message.SubmissionUUID, err.Error())
	}
	log.Debug().Int("text_length", len(text)).Msg("成功提取文本")
	// 简历全文包含个人信息，span里只留截断后的片段
	span.SetAttributes(
		attribute.Int("text_length", len(text)),
		attribute.String("text_preview", tracing.SafeResumeContent(text)),
	)
	span.AddEvent("text_extraction_completed")

	return text, nil
}

// CalculateMD5 计算内容的MD5十六进制摘要
func CalculateMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
