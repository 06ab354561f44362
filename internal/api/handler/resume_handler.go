package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/constants"
	"cv-match-go/internal/logger"
	"cv-match-go/internal/processor"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/storage/models"
	"cv-match-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// 上传端的文件体积上限，超过直接拒绝，避免把超大文件读进内存
const maxUploadFileSize = 20 << 20

// ResumeHandler 处理简历上传入口
type ResumeHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewResumeHandler 创建简历上传处理器
func NewResumeHandler(cfg *config.Config, storage *storage.Storage) *ResumeHandler {
	return &ResumeHandler{
		cfg:     cfg,
		storage: storage,
	}
}

// ResumeUploadResponse 简历上传响应
type ResumeUploadResponse struct {
	SubmissionUUID string `json:"submission_uuid"`
	Status         string `json:"status"`
}

// HandleResumeUpload 处理简历上传请求
// POST /api/v1/resumes/upload (multipart: file, target_job_id)
func (h *ResumeHandler) HandleResumeUpload(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}
	if fileHeader.Size > maxUploadFileSize {
		c.JSON(consts.StatusRequestEntityTooLarge, utils.H{"error": "文件超过大小限制"})
		return
	}

	targetJobID := c.PostForm("target_job_id")

	// 文件名可能含候选人姓名之类的个人信息，追踪属性先做脱敏
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("upload.filename", tracing.SafeAttributeValue("filename", fileHeader.Filename, tracing.MaxHeaderLength)),
		attribute.Int64("upload.file_size_bytes", fileHeader.Size),
		attribute.String("upload.target_job_id", targetJobID),
	)

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	resp, err := h.processUpload(ctx, file, fileHeader.Size, fileHeader.Filename, targetJobID)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("filename", fileHeader.Filename).Msg("简历上传处理失败")
		tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, consts.StatusInternalServerError)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// processUpload 完成上传的核心流程: MD5去重 -> MinIO存原件 -> 落库 -> 发消息
func (h *ResumeHandler) processUpload(ctx context.Context, reader io.Reader, fileSize int64, filename, targetJobID string) (*ResumeUploadResponse, error) {
	// MinIO/MySQL/RabbitMQ缺一个流程都走不完，启动时允许部分降级，这里必须兜住
	if h.storage == nil || h.storage.MinIO == nil || h.storage.MySQL == nil || h.storage.RabbitMQ == nil {
		return nil, processor.ErrStorageNotInit
	}

	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	fileMD5Hex := processor.CalculateMD5(fileBytes)

	// 原子地检查并登记文件MD5；Redis不可用时去重降级，上传流程照常走
	dedupEnabled := h.storage.Redis != nil
	if dedupEnabled {
		exists, err := h.storage.Redis.CheckAndAddRawFileMD5(ctx, fileMD5Hex)
		if err != nil {
			logger.Error().Err(err).Str("md5", fileMD5Hex).Msg("查询Redis文件MD5去重集合失败")
			return nil, fmt.Errorf("检查文件MD5重复性失败: %w", err)
		}
		if exists {
			logger.Info().
				Str("md5", fileMD5Hex).
				Str("filename", filename).
				Msg("检测到重复的文件MD5，跳过处理")
			return &ResumeUploadResponse{
				Status: constants.StatusContentDuplicateSkipped,
			}, nil
		}
	} else {
		logger.Warn().Str("filename", filename).Msg("Redis未初始化，本次上传跳过MD5去重")
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}
	submissionUUID := uuidV7.String()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf"
	}

	originalObjectKey, err := h.storage.MinIO.UploadResumeFile(ctx, submissionUUID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		// 上传失败则回滚去重登记，否则同一份文件再也传不上来
		if dedupEnabled {
			if rmErr := h.storage.Redis.RemoveRawFileMD5(ctx, fileMD5Hex); rmErr != nil {
				logger.Warn().Err(rmErr).Str("md5", fileMD5Hex).Msg("回滚文件MD5登记失败")
			}
		}
		return nil, fmt.Errorf("上传简历到MinIO失败: %w", err)
	}

	submission := &models.ResumeSubmission{
		SubmissionUUID:      submissionUUID,
		SubmissionTimestamp: time.Now(),
		OriginalFilename:    filename,
		OriginalFilePathOSS: originalObjectKey,
		RawFileMD5:          fileMD5Hex,
		ProcessingStatus:    constants.StatusPendingParsing,
	}
	if targetJobID != "" {
		submission.TargetJobID = &targetJobID
	}
	if err := h.storage.MySQL.CreateResumeSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("创建简历提交记录失败: %w", err)
	}

	message := storage.ResumeUploadedMessage{
		SubmissionUUID:      submissionUUID,
		SubmissionTimestamp: time.Now(),
		TargetJobID:         targetJobID,
		OriginalFilename:    filename,
		OriginalFilePathOSS: originalObjectKey,
		RawFileMD5:          fileMD5Hex,
	}
	if err := h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.ResumeEventsExchange,
		h.cfg.RabbitMQ.UploadedRoutingKey,
		message,
		true,
	); err != nil {
		// 落库成功但事件没发出去，记录已经无法被消费，标记为上传处理失败
		if updateErr := h.storage.MySQL.UpdateResumeProcessingStatus(ctx, submissionUUID, constants.StatusUploadProcessingFailed); updateErr != nil {
			logger.Warn().Err(updateErr).Str("submission_uuid", submissionUUID).Msg("更新状态为UPLOAD_PROCESSING_FAILED失败")
		}
		return nil, fmt.Errorf("发布上传消息到RabbitMQ失败: %w", err)
	}

	return &ResumeUploadResponse{
		SubmissionUUID: submissionUUID,
		Status:         "SUBMITTED_FOR_PROCESSING",
	}, nil
}

// HandleGetSubmission 查询单条简历提交的处理状态
// GET /api/v1/resumes/:submission_uuid
func (h *ResumeHandler) HandleGetSubmission(ctx context.Context, c *app.RequestContext) {
	submissionUUID := c.Param("submission_uuid")
	if submissionUUID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "submission_uuid 不能为空"})
		return
	}

	submission, err := h.storage.MySQL.GetResumeSubmission(ctx, submissionUUID)
	if err != nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "简历提交记录不存在"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"submission_uuid":   submission.SubmissionUUID,
		"processing_status": submission.ProcessingStatus,
		"target_job_id":     submission.TargetJobID,
		"original_filename": submission.OriginalFilename,
		"submitted_at":      submission.SubmissionTimestamp,
	})
}
