package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/constants"
	"cv-match-go/internal/logger"
	"cv-match-go/internal/matcher"
	"cv-match-go/internal/processor"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/storage/models"
	"cv-match-go/internal/tracing"
	"cv-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// 入围名单缓存的有效期，名单随新匹配结果滚动更新，不宜缓存太久
const shortlistCacheTTL = 10 * time.Minute

// MatchHandler 处理匹配触发与匹配结果查询
type MatchHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	matchService *processor.MatchService
}

// NewMatchHandler 创建匹配处理器
func NewMatchHandler(cfg *config.Config, storage *storage.Storage, matchService *processor.MatchService) *MatchHandler {
	return &MatchHandler{
		cfg:          cfg,
		storage:      storage,
		matchService: matchService,
	}
}

// TriggerMatchRequest 触发匹配请求体
type TriggerMatchRequest struct {
	SubmissionUUID string `json:"submission_uuid"`
	// Force 跳过状态门槛，强制重算
	Force bool `json:"force"`
	// Sync 为 true 时同步计算并返回结果，否则投递消息异步处理
	Sync bool `json:"sync"`
}

// HandleTriggerMatch 触发一次岗位-简历匹配
// POST /api/v1/jobs/:job_id/matches
func (h *MatchHandler) HandleTriggerMatch(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	var req TriggerMatchRequest
	body, _ := c.Body()
	if err := json.Unmarshal(body, &req); err != nil || req.SubmissionUUID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "submission_uuid 不能为空"})
		return
	}

	if req.Sync {
		result, err := h.matchService.ExecuteMatch(ctx, jobID, req.SubmissionUUID)
		if err != nil {
			status := consts.StatusInternalServerError
			if errors.Is(err, matcher.ErrInvalidProfile) {
				status = consts.StatusUnprocessableEntity
			}
			logger.FromContext(ctx).Error().
				Err(err).
				Str("job_id", jobID).
				Str("submission_uuid", req.SubmissionUUID).
				Msg("同步匹配计算失败")
			tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
			c.JSON(status, utils.H{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusOK, result)
		return
	}

	message := storage.MatchNeededMessage{
		JobID:          jobID,
		SubmissionUUID: req.SubmissionUUID,
		RequestedAt:    time.Now(),
		Force:          req.Force,
	}
	if err := h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.MatchEventsExchange,
		h.cfg.RabbitMQ.MatchNeededRoutingKey,
		message,
		true,
	); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("job_id", jobID).Msg("发布匹配消息失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "投递匹配任务失败"})
		return
	}

	c.JSON(consts.StatusAccepted, utils.H{
		"job_id":          jobID,
		"submission_uuid": req.SubmissionUUID,
		"status":          "MATCH_QUEUED",
	})
}

// HandleGetMatchResult 查询单条匹配结果
// GET /api/v1/jobs/:job_id/matches/:submission_uuid
func (h *MatchHandler) HandleGetMatchResult(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	submissionUUID := c.Param("submission_uuid")
	if jobID == "" || submissionUUID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 和 submission_uuid 不能为空"})
		return
	}

	result, err := h.matchService.GetMatchResult(ctx, jobID, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "匹配结果不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询匹配结果失败"})
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleListMatches 按匹配分倒序列出岗位下的全部匹配结果
// GET /api/v1/jobs/:job_id/matches?limit=
func (h *MatchHandler) HandleListMatches(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	records, err := h.storage.MySQL.ListMatchesByJob(ctx, jobID, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询匹配列表失败"})
		return
	}

	items := make([]map[string]interface{}, 0, len(records))
	for i := range records {
		items = append(items, matchRecordSummary(&records[i]))
	}
	c.JSON(consts.StatusOK, utils.H{
		"job_id": jobID,
		"total":  len(items),
		"data":   items,
	})
}

// HandleShortlist 查询岗位入围名单 (匹配分达到门槛的简历)
// GET /api/v1/jobs/:job_id/shortlist?min_score=&cursor=&limit=
func (h *MatchHandler) HandleShortlist(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	minScore := -1.0
	if raw := c.Query("min_score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 100 {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "min_score 必须在 [0,100] 之间"})
			return
		}
		minScore = parsed
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 20
	}
	cursor, err := strconv.Atoi(c.Query("cursor"))
	if err != nil || cursor < 0 {
		cursor = 0
	}

	// 默认门槛的名单走ZSET缓存，自定义门槛直接查库；Redis降级时全部直查
	useCache := minScore < 0 && h.storage.Redis != nil
	cacheKey := fmt.Sprintf(constants.KeyJobShortlist, jobID)

	if useCache {
		uuids, total, cacheErr := h.storage.Redis.GetCachedShortlist(ctx, cacheKey, int64(cursor), int64(limit))
		if cacheErr == nil && total > 0 {
			// ZSET里只有UUID，回表补全摘要，保证命中与直查返回同样的结构
			records, hydrateErr := h.storage.MySQL.MatchesBySubmissionUUIDs(ctx, jobID, uuids)
			if hydrateErr == nil {
				items := make([]map[string]interface{}, 0, len(records))
				for i := range records {
					items = append(items, matchRecordSummary(&records[i]))
				}
				c.JSON(consts.StatusOK, utils.H{
					"job_id":      jobID,
					"data":        items,
					"total_count": total,
					"next_cursor": cursor + len(items),
					"from_cache":  true,
				})
				return
			}
			logger.FromContext(ctx).Warn().Err(hydrateErr).Str("job_id", jobID).Msg("回表补全入围名单失败，改走直查")
		}
	}

	threshold := minScore
	if threshold < 0 {
		threshold = h.cfg.Matcher.ShortlistMinScore
	}
	records, err := h.storage.MySQL.ShortlistByJob(ctx, jobID, threshold)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询入围名单失败"})
		return
	}

	if useCache && len(records) > 0 {
		ranked := make([]types.RankedSubmission, 0, len(records))
		for i := range records {
			ranked = append(ranked, types.RankedSubmission{
				SubmissionUUID: records[i].SubmissionUUID,
				MatchScore:     records[i].MatchScore,
			})
		}
		if cacheErr := h.storage.Redis.CacheShortlist(ctx, cacheKey, ranked, shortlistCacheTTL); cacheErr != nil {
			logger.FromContext(ctx).Warn().Err(cacheErr).Str("job_id", jobID).Msg("写入入围名单缓存失败")
		}
	}

	end := cursor + limit
	if cursor > len(records) {
		cursor = len(records)
	}
	if end > len(records) {
		end = len(records)
	}
	page := records[cursor:end]

	items := make([]map[string]interface{}, 0, len(page))
	for i := range page {
		items = append(items, matchRecordSummary(&page[i]))
	}
	c.JSON(consts.StatusOK, utils.H{
		"job_id":      jobID,
		"data":        items,
		"total_count": len(records),
		"next_cursor": cursor + len(page),
		"from_cache":  false,
	})
}

// matchRecordSummary 把匹配结果行转成列表响应条目
func matchRecordSummary(record *models.JobResumeMatch) map[string]interface{} {
	var matchedSkills []string
	if len(record.MatchedSkillsJSON) > 0 {
		_ = json.Unmarshal(record.MatchedSkillsJSON, &matchedSkills)
	}
	return map[string]interface{}{
		"submission_uuid":        record.SubmissionUUID,
		"match_score":            record.MatchScore,
		"skill_match_score":      record.SkillMatchScore,
		"experience_match_score": record.ExperienceMatchScore,
		"matched_skills":         matchedSkills,
		"evaluated_at":           record.EvaluatedAt,
	}
}
