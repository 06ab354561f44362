package handler

import (
	"context"
	"strings"
	"testing"

	"cv-match-go/internal/config"
	"cv-match-go/internal/processor"
	"cv-match-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 启动时存储允许部分降级，组件缺失时上传必须干净地报错而不是崩溃
func TestProcessUploadStorageUnavailable(t *testing.T) {
	h := NewResumeHandler(&config.Config{}, &storage.Storage{})

	resp, err := h.processUpload(context.Background(), strings.NewReader("%PDF-1.4"), 8, "resume.pdf", "job-001")
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrStorageNotInit)
	assert.Nil(t, resp)
}

func TestProcessUploadNilStorage(t *testing.T) {
	h := NewResumeHandler(&config.Config{}, nil)

	_, err := h.processUpload(context.Background(), strings.NewReader("%PDF-1.4"), 8, "resume.pdf", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrStorageNotInit)
}
