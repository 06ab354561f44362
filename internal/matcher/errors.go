package matcher

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrDimensionMismatch    = errors.New("嵌入向量维度不一致")
	ErrEmbeddingUnavailable = errors.New("嵌入服务不可用")
	ErrNarrativeUnavailable = errors.New("匹配叙述生成失败")
	ErrInvalidProfile       = errors.New("岗位或简历缺少可用内容")
)

// MatchError 包含详细上下文信息的匹配错误
type MatchError struct {
	JobID          string
	SubmissionUUID string
	Op             string
	BaseErr        error
	Detail         string
}

func (e *MatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 岗位:%s, 简历:%s): %s", e.BaseErr, e.Op, e.JobID, e.SubmissionUUID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 岗位:%s, 简历:%s)", e.BaseErr, e.Op, e.JobID, e.SubmissionUUID)
}

func (e *MatchError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewInvalidProfileError 构造画像无效错误，这是匹配流程中唯一向调用方透出的硬错误
func NewInvalidProfileError(jobID, submissionUUID, detail string) error {
	return &MatchError{
		JobID:          jobID,
		SubmissionUUID: submissionUUID,
		Op:             "validate",
		BaseErr:        ErrInvalidProfile,
		Detail:         detail,
	}
}

// NewEmbeddingError 构造嵌入服务错误，仅用于日志记录，不会中断匹配
func NewEmbeddingError(jobID, submissionUUID, detail string) error {
	return &MatchError{
		JobID:          jobID,
		SubmissionUUID: submissionUUID,
		Op:             "embed",
		BaseErr:        ErrEmbeddingUnavailable,
		Detail:         detail,
	}
}

// NewNarrativeError 构造叙述生成错误，同样只降级不中断
func NewNarrativeError(jobID, submissionUUID, detail string) error {
	return &MatchError{
		JobID:          jobID,
		SubmissionUUID: submissionUUID,
		Op:             "narrative",
		BaseErr:        ErrNarrativeUnavailable,
		Detail:         detail,
	}
}
