package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// llmNarrativePayload LLM返回的JSON载荷
// 数值分数由匹配引擎算出并作为输入提供给LLM，这里只回收文字分析
type llmNarrativePayload struct {
	Narrative string `json:"narrative"`
}

// LLMNarrativeAnalyzer 基于大模型的匹配叙述分析器
// 实现 matcher.NarrativeAnalyzer 接口，输出仅作展示用途
type LLMNarrativeAnalyzer struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
	logger         *log.Logger
}

// LLMNarrativeAnalyzerOption 叙述分析器的配置选项
type LLMNarrativeAnalyzerOption func(*LLMNarrativeAnalyzer)

// WithNarrativePromptTemplate 设置自定义提示词模板
// 模板按顺序接收三个占位值: 岗位描述、简历全文、已算出的综合分
func WithNarrativePromptTemplate(template string) LLMNarrativeAnalyzerOption {
	return func(a *LLMNarrativeAnalyzer) {
		a.promptTemplate = template
	}
}

// NewLLMNarrativeAnalyzer 创建叙述分析器实例
func NewLLMNarrativeAnalyzer(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...LLMNarrativeAnalyzerOption) *LLMNarrativeAnalyzer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	analyzer := &LLMNarrativeAnalyzer{
		llmModel: llmModel,
		logger:   logger,
	}
	analyzer.generatePromptTemplate()

	for _, opt := range options {
		opt(analyzer)
	}
	return analyzer
}

func (a *LLMNarrativeAnalyzer) generatePromptTemplate() {
	a.promptTemplate = `你是一位资深的AI招聘专家。系统已经通过向量相似度算法得出了候选人与岗位的综合匹配分（0-100），你的任务不是重新打分，而是基于【岗位描述】和【候选人简历】解释这个分数: 候选人的哪些技能和经历支撑了匹配，哪些方面存在差距，以及是否建议进入下一轮。

**请严格按以下JSON格式输出：**
{"narrative": "一段200字以内的中文匹配分析"}

**格式要求：**
- 完整输出必须是一个合法的JSON对象，禁止在JSON之外输出任何文本或Markdown标记。
- 字符串值内部的双引号必须使用反斜杠转义。
- 分析必须与给出的综合匹配分一致，不要给出与分数矛盾的结论。

【岗位描述】:
"""
%s
"""

【候选人简历】:
"""
%s
"""

【算法综合匹配分】: %.1f / 100

请输出JSON结果。`
}

// Analyze 生成匹配叙述, 实现 matcher.NarrativeAnalyzer 接口
// 任何失败都返回错误，由调用方决定降级策略
func (a *LLMNarrativeAnalyzer) Analyze(ctx context.Context, jobText string, resumeText string, precomputedScore float64) (string, error) {
	if a.llmModel == nil {
		return "", fmt.Errorf("LLMNarrativeAnalyzer: llmModel is not initialized")
	}

	userMsgContent := fmt.Sprintf(a.promptTemplate, jobText, resumeText, precomputedScore)
	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位资深的AI招聘助手，专注于解释候选人与岗位的匹配情况。"),
		einoschema.UserMessage(userMsgContent),
	}

	a.logger.Printf("[LLMNarrativeAnalyzer] Requesting narrative. Score: %.1f, JD (first 200 chars): %.200s", precomputedScore, jobText)

	response, err := a.llmModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLMNarrativeAnalyzer: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return "", fmt.Errorf("LLMNarrativeAnalyzer: LLM returned empty response")
	}
	a.logger.Printf("[LLMNarrativeAnalyzer] LLM Response: %s", response.Content)

	processedContent := strings.TrimPrefix(response.Content, "\uFEFF")

	jsonStr := extractJSONFromResponse(processedContent)
	if jsonStr == "" {
		return "", fmt.Errorf("LLMNarrativeAnalyzer: failed to extract JSON from LLM response. Content: %s", processedContent)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var payload llmNarrativePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		// 解析失败时自动修复未转义的引号再试一次
		fixedJSONStr := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixedJSONStr), &payload); jsonErr != nil {
			return "", fmt.Errorf("LLMNarrativeAnalyzer: failed to unmarshal LLM JSON response after sanitization. Original error: %w. Sanitization error: %v. JSON string: %s", err, jsonErr, jsonStr)
		}
	}

	narrative := strings.TrimSpace(payload.Narrative)
	if narrative == "" {
		return "", fmt.Errorf("LLMNarrativeAnalyzer: LLM returned empty narrative field")
	}
	return narrative, nil
}

// extractJSONFromResponse 从文本中按花括号配平提取第一个完整的JSON对象
func extractJSONFromResponse(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 会遍历 src，将任何位于字符串字面量内部但并非"真正结束"的双引号改写成转义形式,
// 以保证整个 JSON 在 Go 端能够正常反序列化。
// 它通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串的结束。
// 反斜杠转义逻辑则正常处理 \\ 和 \"。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				// 当前在字符串里，检查这是不是字符串的真正结束
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
