package storage

import "time"

// ResumeUploadedMessage 简历上传事件，由上传入口发布到 resume_events 交换机
type ResumeUploadedMessage struct {
	SubmissionUUID      string    `json:"submission_uuid"`
	SubmissionTimestamp time.Time `json:"submission_timestamp"`
	TargetJobID         string    `json:"target_job_id,omitempty"`
	OriginalFilename    string    `json:"original_filename"`
	OriginalFilePathOSS string    `json:"original_file_path_oss"`
	// 原始文件的MD5，上传流程失败时用于回滚去重集合
	RawFileMD5 string `json:"raw_file_md5,omitempty"`
}

// ResumeParsedMessage 简历解析完成事件
// 解析后的文本以对象路径传递，消息体不携带全文
type ResumeParsedMessage struct {
	SubmissionUUID    string `json:"submission_uuid"`
	TargetJobID       string `json:"target_job_id,omitempty"`
	ParsedTextPathOSS string `json:"parsed_text_path_oss,omitempty"`
	ProcessingStatus  string `json:"processing_status,omitempty"`
	Error             string `json:"error,omitempty"`
}

// MatchNeededMessage 触发一次人岗匹配计算的事件
type MatchNeededMessage struct {
	JobID          string    `json:"job_id"`
	SubmissionUUID string    `json:"submission_uuid"`
	RequestedAt    time.Time `json:"requested_at"`
	// 强制重算并覆盖已存在的匹配结果
	Force bool `json:"force,omitempty"`
}
