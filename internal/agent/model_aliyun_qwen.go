package agent

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

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// DashScope 的 OpenAI 兼容端点
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// --- OpenAI 兼容结构 ---

type OpenAIToolFunctionParamsProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type OpenAIToolFunctionParams struct {
	Type       string                                      `json:"type"`
	Properties map[string]OpenAIToolFunctionParamsProperty `json:"properties"`
	Required   []string                                    `json:"required,omitempty"`
}

type OpenAIFunction struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  OpenAIToolFunctionParams `json:"parameters"`
}

type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

type OpenAIChatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"`
	Tools    []OpenAITool      `json:"tools,omitempty"`
}

type OpenAIMessage struct {
	Role      string               `json:"role"`
	Content   *string              `json:"content"`
	ToolCalls []OpenAIToolCallData `json:"tool_calls,omitempty"`
}

type OpenAIToolCallData struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type OpenAIChatChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
}

// AliyunQwenChatModel 通过 DashScope 的 OpenAI 兼容端点与通义千问交互,
// 实现 model.ToolCallingChatModel 接口。匹配叙述生成只用到 Generate。
type AliyunQwenChatModel struct {
	apiKey           string
	modelName        string
	apiURL           string
	httpClient       *http.Client
	boundOpenAITools []OpenAITool
	logger           *log.Logger
}

// NewAliyunQwenChatModel 创建通义千问聊天模型客户端
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}
	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	return &AliyunQwenChatModel{
		apiKey:           apiKey,
		modelName:        mn,
		apiURL:           url,
		httpClient:       &http.Client{},
		boundOpenAITools: make([]OpenAITool, 0),
		logger:           log.New(os.Stderr, "[AliyunQwen] ", log.LstdFlags),
	}, nil
}

// SetLogger 替换默认日志记录器
func (aq *AliyunQwenChatModel) SetLogger(logger *log.Logger) {
	if logger != nil {
		aq.logger = logger
	}
}

// Generate 实现 model.BaseChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqPayload := OpenAIChatCompletionRequest{
		Model:    aq.modelName,
		Messages: messages,
	}
	if len(aq.boundOpenAITools) > 0 {
		reqPayload.Tools = aq.boundOpenAITools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	aq.logger.Printf("发送请求到 %s，模型 %s，消息数 %d", aq.apiURL, aq.modelName, len(messages))

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp OpenAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}
	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}

	if len(apiMessage.ToolCalls) > 0 {
		resultMessage.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			resultMessage.ToolCalls[i] = schema.ToolCall{
				ID: tc.Id,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return resultMessage, nil
}

// Stream 实现 model.BaseChatModel 接口
// 叙述生成走的是一次性请求，流式暂不支持
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel (OpenAI 兼容) 的 Stream 方法未实现")
}

// BindTools 将工具描述转换为 OpenAI 兼容格式并绑定
// ToolInfo 的参数 schema 无法完整导出，工具参数按空对象处理
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	aq.boundOpenAITools = make([]OpenAITool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		aq.boundOpenAITools = append(aq.boundOpenAITools, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters: OpenAIToolFunctionParams{
					Type:       "object",
					Properties: map[string]OpenAIToolFunctionParamsProperty{},
				},
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
