package storage

import (
	"testing"

	"cv-match-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
)

func TestOrderMatchesByUUID(t *testing.T) {
	matches := []models.JobResumeMatch{
		{SubmissionUUID: "sub-c", MatchScore: 71},
		{SubmissionUUID: "sub-a", MatchScore: 92},
		{SubmissionUUID: "sub-b", MatchScore: 85},
	}

	// 缓存名单按分数降序，IN查询返回顺序任意，重排后必须跟名单一致
	ordered := orderMatchesByUUID(matches, []string{"sub-a", "sub-b", "sub-c"})
	assert.Equal(t, []string{"sub-a", "sub-b", "sub-c"}, []string{
		ordered[0].SubmissionUUID, ordered[1].SubmissionUUID, ordered[2].SubmissionUUID,
	})

	// 库里已删除的条目直接跳过，不产生空洞
	ordered = orderMatchesByUUID(matches, []string{"sub-b", "sub-gone", "sub-c"})
	assert.Len(t, ordered, 2)
	assert.Equal(t, "sub-b", ordered[0].SubmissionUUID)
	assert.Equal(t, "sub-c", ordered[1].SubmissionUUID)

	assert.Empty(t, orderMatchesByUUID(matches, nil))
}
