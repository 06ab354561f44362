package constants

import "time"

const (
	// 综合分数的加权: MatchScore = 0.6*技能分 + 0.4*经历分
	SkillScoreWeight      = 0.6
	ExperienceScoreWeight = 0.4

	// SkillMatchThreshold 技能对被判定为"匹配"的余弦相似度门槛（严格大于）
	SkillMatchThreshold = 0.8

	// ExperienceRelevanceThreshold 经历条目被判定为"相关"的相似度门槛（严格大于）
	ExperienceRelevanceThreshold = 0.6

	// DefaultShortlistMinScore 入围筛选的默认最低综合分（0-100量纲）
	DefaultShortlistMinScore = 70.0

	// DefaultNarrativeTimeout 叙述性分析LLM调用的默认超时
	DefaultNarrativeTimeout = 30 * time.Second

	// DefaultMD5RecordExpireDays 文件去重记录的默认保留天数
	DefaultMD5RecordExpireDays = 365

	// DefaultJobVectorExpireHours JD向量缓存的默认保留小时数
	DefaultJobVectorExpireHours = 24
)
