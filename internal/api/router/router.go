package router

import (
	"context"

	"cv-match-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(
	h *server.Hertz,
	resumeHandler *handler.ResumeHandler,
	jobHandler *handler.JobHandler,
	matchHandler *handler.MatchHandler,
) {
	api := h.Group("/api/v1")

	// 简历上传与状态查询
	api.POST("/resumes/upload", resumeHandler.HandleResumeUpload)
	api.GET("/resumes/:submission_uuid", resumeHandler.HandleGetSubmission)

	// 岗位管理
	api.POST("/jobs", jobHandler.HandleCreateJob)
	api.GET("/jobs/:job_id", jobHandler.HandleGetJob)

	// 匹配触发与结果查询
	api.POST("/jobs/:job_id/matches", matchHandler.HandleTriggerMatch)
	api.GET("/jobs/:job_id/matches", matchHandler.HandleListMatches)
	api.GET("/jobs/:job_id/matches/:submission_uuid", matchHandler.HandleGetMatchResult)
	api.GET("/jobs/:job_id/shortlist", matchHandler.HandleShortlist)

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
