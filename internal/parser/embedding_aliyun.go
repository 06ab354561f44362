package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"cv-match-go/internal/config"

	"github.com/cloudwego/eino/components/embedding"
)

// AliyunEmbedder 基于阿里云 DashScope 的 OpenAI 兼容端点实现 embedding.Embedder
// 同时满足匹配引擎对 TextEmbedder 的要求 (EmbedStrings + GetDimensions)
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// NewAliyunEmbedder 创建阿里云嵌入器
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	return &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		httpClient: &http.Client{},
		baseURL:    baseURL,
		logger:     log.New(os.Stderr, "[AliyunEmbedder] ", log.LstdFlags|log.Lshortfile),
	}, nil
}

// SetLogger 替换默认日志器，测试中常用 io.Discard
func (a *AliyunEmbedder) SetLogger(logger *log.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// GetDimensions 返回嵌入器配置的向量维度
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

// AliyunOpenAIEmbeddingRequest 阿里云Embedding请求结构 (OpenAI兼容)
type AliyunOpenAIEmbeddingRequest struct {
	Input          interface{} `json:"input"` // string 或 []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
}

// AliyunOpenAIEmbeddingResponse 阿里云Embedding响应结构 (OpenAI兼容)
type AliyunOpenAIEmbeddingResponse struct {
	Object string                  `json:"object"`
	Data   []AliyunOpenAIDataEntry `json:"data"`
	Model  string                  `json:"model"`
	Usage  AliyunOpenAIUsage       `json:"usage"`
	ID     string                  `json:"id,omitempty"`
	Error  *AliyunOpenAIError      `json:"error,omitempty"`
}

type AliyunOpenAIDataEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type AliyunOpenAIUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AliyunOpenAIError API层面的错误，可能随 200 OK 一起返回
type AliyunOpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将一批文本转换为向量, 实现 cloudwego/eino embedding.Embedder 接口
// 返回的向量与输入文本一一对应且保持顺序
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := AliyunOpenAIEmbeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	a.logger.Printf("Embedding %d texts with model %s. First text (first 100 chars): %.100s",
		len(texts), effectiveModel, texts[0])

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError AliyunOpenAIError
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s",
				resp.StatusCode, apiError.Type, apiError.Message, apiError.Code)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	var parsedResp AliyunOpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w. Body: %s", err, string(body))
	}

	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s', Code=%s",
			parsedResp.Error.Type, parsedResp.Error.Message, parsedResp.Error.Code)
	}

	if len(parsedResp.Data) != len(texts) {
		return nil, fmt.Errorf("嵌入结果数量与输入不符: 期望 %d, 实际 %d", len(texts), len(parsedResp.Data))
	}

	// 按 Index 归位，响应顺序不保证与输入一致
	outputEmbeddings := make([][]float64, len(texts))
	for _, entry := range parsedResp.Data {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("嵌入结果索引越界: %d (共 %d 条输入)", entry.Index, len(texts))
		}
		outputEmbeddings[entry.Index] = entry.Embedding
	}

	a.logger.Printf("Successfully embedded %d texts. First embedding dim: %d, preview: %s. Prompt tokens: %d, Total tokens: %d",
		len(texts), firstEmbeddingDim(outputEmbeddings), truncateEmbedding(outputEmbeddings[0]),
		parsedResp.Usage.PromptTokens, parsedResp.Usage.TotalTokens)

	return outputEmbeddings, nil
}

func firstEmbeddingDim(embeddings [][]float64) int {
	if len(embeddings) > 0 {
		return len(embeddings[0])
	}
	return 0
}

// truncateEmbedding 截断嵌入向量的字符串表示形式，用于日志
func truncateEmbedding(vector []float64) string {
	const maxLen = 6
	const showEachSide = 3

	if len(vector) <= maxLen {
		return fmt.Sprintf("%v", vector)
	}

	var truncated []string
	for i := 0; i < showEachSide; i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	truncated = append(truncated, "...")
	for i := len(vector) - showEachSide; i < len(vector); i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	return fmt.Sprintf("[%s]", strings.Join(truncated, ", "))
}
