package types

// JobProfile 岗位画像，作为匹配引擎的只读输入
// 传入引擎后不可变，引擎绝不修改其中的字段
type JobProfile struct {
	JobID          string   `json:"job_id,omitempty"`
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills"` // 去重后的技能集合，顺序无语义
}

// ResumeProfile 候选人简历画像，匹配引擎的另一侧只读输入
// 结构化字段在摄入层完成校验，引擎只看到已定型的数据
type ResumeProfile struct {
	SubmissionUUID    string            `json:"submission_uuid,omitempty"`
	RawText           string            `json:"raw_text"`
	Skills            []string          `json:"skills"`
	ExperienceEntries []ExperienceEntry `json:"experience_entries"` // 保留原始顺序
	Education         string            `json:"education,omitempty"` // 对匹配引擎不透明
}

// ExperienceEntry 一段工作/项目经历
type ExperienceEntry struct {
	Description   string  `json:"description"`
	DurationYears float64 `json:"duration_years"` // 缺失或无法解析时为0，不允许为负
}

// ExperienceAnalysis 经历维度的结构化分析结果
type ExperienceAnalysis struct {
	// 所有经历条目年限之和
	TotalYears float64 `json:"total_years"`

	// 与岗位描述相关的经历条目，保持输入顺序的子序列
	RelevantExperience []ExperienceEntry `json:"relevant_experience"`
}

// RankedSubmission 入围名单中的一项，用于排序缓存
type RankedSubmission struct {
	SubmissionUUID string  `json:"submission_uuid"`
	MatchScore     float64 `json:"match_score"`
}

// MatchResult 一次人岗匹配的完整输出，本核心唯一创建的实体
// 每个 (JobProfile, ResumeProfile) 对生成一次，生成后不可变
//
// 不变式:
//   - MatchedSkills ∪ MissingSkills == 岗位技能集合，且两者不相交
//   - 三个分数均位于 [0,100]
//   - MatchScore == SkillScoreWeight*SkillMatchScore + ExperienceScoreWeight*ExperienceMatchScore
type MatchResult struct {
	MatchScore           float64 `json:"match_score"`
	SkillMatchScore      float64 `json:"skill_match_score"`
	ExperienceMatchScore float64 `json:"experience_match_score"`

	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`

	ExperienceAnalysis ExperienceAnalysis `json:"experience_analysis"`

	// LLM 生成的匹配分析文本，仅供展示，不参与任何数值计算
	// 分析调用失败或超时时为空字符串
	Narrative string `json:"narrative,omitempty"`

	// 产生数值分数的嵌入模型版本，用于结果可比性判断
	EmbeddingModelVersion string `json:"embedding_model_version,omitempty"`
}
