package handler

import (
	"testing"
	"time"

	"cv-match-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
)

func TestMatchRecordSummary(t *testing.T) {
	evaluatedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	record := &models.JobResumeMatch{
		SubmissionUUID:       "sub-1",
		JobID:                "job-1",
		MatchScore:           82.5,
		SkillMatchScore:      90,
		ExperienceMatchScore: 71.25,
		MatchedSkillsJSON:    models.StringToJSON(`["Go","Kubernetes"]`),
		EvaluatedAt:          evaluatedAt,
	}

	summary := matchRecordSummary(record)

	assert.Equal(t, "sub-1", summary["submission_uuid"])
	assert.Equal(t, 82.5, summary["match_score"])
	assert.Equal(t, []string{"Go", "Kubernetes"}, summary["matched_skills"])
	assert.Equal(t, evaluatedAt, summary["evaluated_at"])
}

func TestMatchRecordSummaryCorruptSkillsJSON(t *testing.T) {
	record := &models.JobResumeMatch{
		SubmissionUUID:    "sub-2",
		MatchScore:        10,
		MatchedSkillsJSON: models.StringToJSON(`{not-json`),
	}

	// 技能JSON损坏时降级为空列表，不影响其余字段输出
	summary := matchRecordSummary(record)
	assert.Empty(t, summary["matched_skills"])
	assert.Equal(t, 10.0, summary["match_score"])
}
