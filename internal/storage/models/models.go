package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Job 岗位信息表
type Job struct {
	JobID              string         `gorm:"type:char(36);primaryKey"`
	JobTitle           string         `gorm:"type:varchar(255);not null"`
	Company            string         `gorm:"type:varchar(255)"`
	Department         string         `gorm:"type:varchar(255)"`
	Location           string         `gorm:"type:varchar(255)"`
	JobDescriptionText string         `gorm:"type:text;not null"`
	RequiredSkillsJSON datatypes.JSON `gorm:"type:json"`
	Status             string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// ResumeSubmission 简历提交/快照表
// 原始PDF与解析文本都存对象存储，这里只留路径
type ResumeSubmission struct {
	SubmissionUUID      string         `gorm:"type:char(36);primaryKey"`
	SubmissionTimestamp time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_rs_submission_timestamp"`
	TargetJobID         *string        `gorm:"type:char(36);index:idx_rs_target_job_id"`
	OriginalFilename    string         `gorm:"type:varchar(255)"`
	OriginalFilePathOSS string         `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS   string         `gorm:"type:varchar(1024)"`
	RawFileMD5          string         `gorm:"type:char(32);index:idx_rs_raw_file_md5"`
	ProfileJSON         datatypes.JSON `gorm:"type:json"` // 结构化画像: 技能、经历条目、教育背景
	ProcessingStatus    string         `gorm:"type:varchar(50);default:'PENDING_PARSING';index:idx_rs_processing_status"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job *Job `gorm:"foreignKey:TargetJobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (ResumeSubmission) TableName() string {
	return "resume_submissions"
}

// JobResumeMatch 岗位-简历匹配结果表
// (SubmissionUUID, JobID) 唯一，重复匹配走 upsert 覆盖旧结果
type JobResumeMatch struct {
	MatchID                 uint64         `gorm:"primaryKey;autoIncrement"`
	SubmissionUUID          string         `gorm:"type:char(36);not null;index:idx_jrm_submission_uuid;uniqueIndex:idx_jrm_submission_job_unique,priority:1"`
	JobID                   string         `gorm:"type:char(36);not null;index:idx_jrm_job_id_score,priority:1;uniqueIndex:idx_jrm_submission_job_unique,priority:2"`
	MatchScore              float64        `gorm:"type:double;not null;index:idx_jrm_job_id_score,priority:2"`
	SkillMatchScore         float64        `gorm:"type:double;not null"`
	ExperienceMatchScore    float64        `gorm:"type:double;not null"`
	MatchedSkillsJSON       datatypes.JSON `gorm:"type:json"`
	MissingSkillsJSON       datatypes.JSON `gorm:"type:json"`
	ExperienceAnalysisJSON  datatypes.JSON `gorm:"type:json"`
	Narrative               string         `gorm:"type:text"`
	EmbeddingModelVersion   string         `gorm:"type:varchar(100)"`
	EvaluatedAt             time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	CreatedAt               time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt               time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	ResumeSubmission *ResumeSubmission `gorm:"foreignKey:SubmissionUUID;references:SubmissionUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Job              *Job              `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobResumeMatch) TableName() string {
	return "job_resume_matches"
}

// StringToJSON 将字符串转换为 datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MarshalToJSON 将任意值序列化为 datatypes.JSON
func MarshalToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
