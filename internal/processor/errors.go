package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrStorageNotInit       = errors.New("存储未初始化")
	ErrExtractorNotInit     = errors.New("提取器未初始化")
	ErrEngineNotInit        = errors.New("匹配引擎未初始化")
	ErrResumeDownloadFailed = errors.New("下载简历失败")
	ErrParseTextFailed      = errors.New("提取简历文本失败")
	ErrStoreTextFailed      = errors.New("上传解析文本失败")
	ErrPublishMessageFailed = errors.New("发布流水线消息失败")
	ErrUpdateStatusFailed   = errors.New("更新简历状态失败")
	ErrDatabaseFailed       = errors.New("数据库操作失败")
	ErrDuplicateContent     = errors.New("检测到重复内容")
	ErrJobNotFound          = errors.New("岗位不存在")
	ErrProfileNotReady      = errors.New("简历画像未就绪")
)

// PipelineError 包含处理环节上下文的错误
type PipelineError struct {
	SubmissionUUID string
	JobID          string
	Op             string
	BaseErr        error
	Detail         string
}

func (e *PipelineError) Error() string {
	ids := e.SubmissionUUID
	if e.JobID != "" {
		ids = fmt.Sprintf("%s, Job:%s", ids, e.JobID)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, UUID:%s): %s", e.BaseErr, e.Op, ids, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, UUID:%s)", e.BaseErr, e.Op, ids)
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewDownloadError(uuid, detail string) error {
	return &PipelineError{
		SubmissionUUID: uuid,
		Op:             "download",
		BaseErr:        ErrResumeDownloadFailed,
		Detail:         detail,
	}
}

func NewParseError(uuid, detail string) error {
	return &PipelineError{
		SubmissionUUID: uuid,
		Op:             "parse",
		BaseErr:        ErrParseTextFailed,
		Detail:         detail,
	}
}

func NewStoreError(uuid, detail string) error {
	return &PipelineError{
		SubmissionUUID: uuid,
		Op:             "store",
		BaseErr:        ErrStoreTextFailed,
		Detail:         detail,
	}
}

func NewPublishError(uuid, detail string) error {
	return &PipelineError{
		SubmissionUUID: uuid,
		Op:             "publish",
		BaseErr:        ErrPublishMessageFailed,
		Detail:         detail,
	}
}

func NewUpdateError(uuid, detail string) error {
	return &PipelineError{
		SubmissionUUID: uuid,
		Op:             "update",
		BaseErr:        ErrUpdateStatusFailed,
		Detail:         detail,
	}
}

func NewMatchError(uuid, jobID, detail string, base error) error {
	return &PipelineError{
		SubmissionUUID: uuid,
		JobID:          jobID,
		Op:             "match",
		BaseErr:        base,
		Detail:         detail,
	}
}
