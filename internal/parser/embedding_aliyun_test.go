package parser_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"cv-match-go/internal/config"
	"cv-match-go/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedderWithServer(t *testing.T, handler http.HandlerFunc) (*parser.AliyunEmbedder, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	embedder, err := parser.NewAliyunEmbedder("test-api-key", config.EmbeddingConfig{
		Model:      "text-embedding-v3",
		Dimensions: 4,
		BaseURL:    server.URL,
	})
	require.NoError(t, err)
	embedder.SetLogger(log.New(io.Discard, "", 0))
	return embedder, server
}

func TestAliyunEmbedder_EmbedStrings_Success(t *testing.T) {
	var gotReq parser.AliyunOpenAIEmbeddingRequest
	embedder, _ := newEmbedderWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		// 刻意乱序返回，嵌入器必须按 Index 归位
		resp := parser.AliyunOpenAIEmbeddingResponse{
			Object: "list",
			Model:  "text-embedding-v3",
			Data: []parser.AliyunOpenAIDataEntry{
				{Object: "embedding", Index: 1, Embedding: []float64{0, 1, 0, 0}},
				{Object: "embedding", Index: 0, Embedding: []float64{1, 0, 0, 0}},
			},
			Usage: parser.AliyunOpenAIUsage{PromptTokens: 8, TotalTokens: 8},
		}
		json.NewEncoder(w).Encode(resp)
	})

	vecs, err := embedder.EmbedStrings(context.Background(), []string{"后端开发", "数据分析"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, []float64{1, 0, 0, 0}, vecs[0], "向量顺序必须与输入文本一致")
	assert.Equal(t, []float64{0, 1, 0, 0}, vecs[1])
	assert.Equal(t, "text-embedding-v3", gotReq.Model)
	assert.Equal(t, 4, gotReq.Dimensions, "配置的维度应随请求下发")
}

func TestAliyunEmbedder_EmbedStrings_EmptyInput(t *testing.T) {
	embedder, _ := newEmbedderWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("空输入不应触发HTTP调用")
	})

	vecs, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestAliyunEmbedder_EmbedStrings_HTTPError(t *testing.T) {
	embedder, _ := newEmbedderWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Invalid API key",
			"type":    "invalid_request_error",
			"code":    "invalid_api_key",
		})
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"任意文本"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAliyunEmbedder_EmbedStrings_APILevelError(t *testing.T) {
	embedder, _ := newEmbedderWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		// 200 OK 但响应体携带错误
		json.NewEncoder(w).Encode(parser.AliyunOpenAIEmbeddingResponse{
			Error: &parser.AliyunOpenAIError{
				Message: "input too long",
				Type:    "invalid_request_error",
			},
		})
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"任意文本"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input too long")
}

func TestAliyunEmbedder_EmbedStrings_CountMismatch(t *testing.T) {
	embedder, _ := newEmbedderWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(parser.AliyunOpenAIEmbeddingResponse{
			Data: []parser.AliyunOpenAIDataEntry{
				{Index: 0, Embedding: []float64{1, 0, 0, 0}},
			},
		})
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"文本一", "文本二"})
	require.Error(t, err, "返回数量与输入不符必须报错而不是静默截断")
}

func TestNewAliyunEmbedder_EmptyAPIKey(t *testing.T) {
	_, err := parser.NewAliyunEmbedder("", config.EmbeddingConfig{})
	assert.Error(t, err)
}

func TestAliyunEmbedder_LogsTruncatedPreview(t *testing.T) {
	embedder, _ := newEmbedderWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(parser.AliyunOpenAIEmbeddingResponse{
			Data: []parser.AliyunOpenAIDataEntry{
				{Index: 0, Embedding: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}},
			},
		})
	})

	var logBuf bytes.Buffer
	embedder.SetLogger(log.New(&logBuf, "", 0))

	_, err := embedder.EmbedStrings(context.Background(), []string{"后端开发"})
	require.NoError(t, err)

	// 日志里只出现向量首尾的预览，长向量中段省略
	logged := logBuf.String()
	assert.Contains(t, logged, "preview: [0.1000, 0.2000, 0.3000, ..., 0.6000, 0.7000, 0.8000]")
}
