package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/logger"
	"cv-match-go/internal/processor"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
)

// JobHandler 处理岗位的创建与查询
type JobHandler struct {
	cfg         *config.Config
	storage     *storage.Storage
	jdProcessor *processor.JDProcessor
	logger      *log.Logger
}

// NewJobHandler 创建岗位处理器。jdProcessor 可为 nil，此时不做JD向量预热。
func NewJobHandler(cfg *config.Config, storage *storage.Storage, jdProcessor *processor.JDProcessor) *JobHandler {
	return &JobHandler{
		cfg:         cfg,
		storage:     storage,
		jdProcessor: jdProcessor,
		logger:      log.New(os.Stdout, "[JobHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// CreateJobRequest 创建岗位请求体
type CreateJobRequest struct {
	JobID              string   `json:"job_id"`
	JobTitle           string   `json:"job_title"`
	Company            string   `json:"company"`
	Department         string   `json:"department"`
	Location           string   `json:"location"`
	JobDescriptionText string   `json:"job_description_text"`
	RequiredSkills     []string `json:"required_skills"`
}

// HandleCreateJob 创建或更新岗位
// POST /api/v1/jobs
func (h *JobHandler) HandleCreateJob(ctx context.Context, c *app.RequestContext) {
	var req CreateJobRequest
	body, _ := c.Body()
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
		return
	}
	if req.JobTitle == "" || req.JobDescriptionText == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_title 和 job_description_text 不能为空"})
		return
	}

	jobID := req.JobID
	if jobID == "" {
		uuidV7, err := uuid.NewV7()
		if err != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成岗位ID失败"})
			return
		}
		jobID = uuidV7.String()
	}

	skillsJSON, err := models.MarshalToJSON(req.RequiredSkills)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "required_skills 序列化失败"})
		return
	}

	job := &models.Job{
		JobID:              jobID,
		JobTitle:           req.JobTitle,
		Company:            req.Company,
		Department:         req.Department,
		Location:           req.Location,
		JobDescriptionText: req.JobDescriptionText,
		RequiredSkillsJSON: skillsJSON,
		Status:             "ACTIVE",
	}
	if err := h.storage.MySQL.SaveJob(ctx, job); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("job_id", jobID).Msg("保存岗位失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "保存岗位失败"})
		return
	}

	// JD向量预热异步做，失败不影响岗位创建，匹配时会按需重算
	if h.jdProcessor != nil {
		go func() {
			warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := h.jdProcessor.GetJobDescriptionVector(warmCtx, jobID, req.JobDescriptionText); err != nil {
				h.logger.Printf("岗位 %s 的JD向量预热失败: %v", jobID, err)
			}
		}()
	}

	c.JSON(consts.StatusOK, utils.H{"job_id": jobID, "status": job.Status})
}

// HandleGetJob 查询岗位详情
// GET /api/v1/jobs/:job_id
func (h *JobHandler) HandleGetJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	job, err := h.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "岗位不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位失败"})
		return
	}

	var requiredSkills []string
	if len(job.RequiredSkillsJSON) > 0 {
		if err := json.Unmarshal(job.RequiredSkillsJSON, &requiredSkills); err != nil {
			h.logger.Printf("岗位 %s 的 required_skills_json 解析失败: %v", jobID, err)
		}
	}

	c.JSON(consts.StatusOK, utils.H{
		"job_id":               job.JobID,
		"job_title":            job.JobTitle,
		"company":              job.Company,
		"department":           job.Department,
		"location":             job.Location,
		"job_description_text": job.JobDescriptionText,
		"required_skills":      requiredSkills,
		"status":               job.Status,
		"created_at":           job.CreatedAt,
	})
}
