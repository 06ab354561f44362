package parser_test

import (
	"context"
	"testing"

	"cv-match-go/internal/parser"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel 返回固定文本的聊天模型
type fakeChatModel struct {
	content string
	err     error

	lastMessages []*einoschema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, messages []*einoschema.Message, _ ...model.Option) (*einoschema.Message, error) {
	f.lastMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	return einoschema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*einoschema.Message, _ ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, assert.AnError
}

func (f *fakeChatModel) WithTools(_ []*einoschema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func TestLLMNarrativeAnalyzer_Analyze_Success(t *testing.T) {
	chatModel := &fakeChatModel{content: `{"narrative": "候选人技能与岗位高度契合，建议进入面试。"}`}
	analyzer := parser.NewLLMNarrativeAnalyzer(chatModel, nil)

	narrative, err := analyzer.Analyze(context.Background(), "后端工程师岗位", "候选人简历全文", 78.5)
	require.NoError(t, err)
	assert.Equal(t, "候选人技能与岗位高度契合，建议进入面试。", narrative)

	require.Len(t, chatModel.lastMessages, 2)
	assert.Equal(t, einoschema.System, chatModel.lastMessages[0].Role)
	assert.Contains(t, chatModel.lastMessages[1].Content, "78.5", "提示词必须携带已算出的综合分")
	assert.Contains(t, chatModel.lastMessages[1].Content, "后端工程师岗位")
}

func TestLLMNarrativeAnalyzer_Analyze_SurroundingText(t *testing.T) {
	// LLM偶尔会在JSON外包裹说明文字或代码块标记
	chatModel := &fakeChatModel{content: "好的，以下是分析结果:\n```json\n{\"narrative\": \"匹配度一般。\"}\n```"}
	analyzer := parser.NewLLMNarrativeAnalyzer(chatModel, nil)

	narrative, err := analyzer.Analyze(context.Background(), "岗位", "简历", 50)
	require.NoError(t, err)
	assert.Equal(t, "匹配度一般。", narrative)
}

func TestLLMNarrativeAnalyzer_Analyze_UnescapedQuotes(t *testing.T) {
	// 字符串内部未转义的引号应被自动修复
	chatModel := &fakeChatModel{content: `{"narrative": "候选人主导过"春季推广"项目，经验相关。"}`}
	analyzer := parser.NewLLMNarrativeAnalyzer(chatModel, nil)

	narrative, err := analyzer.Analyze(context.Background(), "岗位", "简历", 80)
	require.NoError(t, err)
	assert.Contains(t, narrative, "春季推广")
}

func TestLLMNarrativeAnalyzer_Analyze_Failures(t *testing.T) {
	tests := []struct {
		name    string
		model   *fakeChatModel
		wantErr string
	}{
		{"LLM调用失败", &fakeChatModel{err: assert.AnError}, "LLM call failed"},
		{"空响应", &fakeChatModel{content: ""}, "empty response"},
		{"无JSON", &fakeChatModel{content: "抱歉，我无法完成这个任务。"}, "failed to extract JSON"},
		{"叙述字段为空", &fakeChatModel{content: `{"narrative": ""}`}, "empty narrative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := parser.NewLLMNarrativeAnalyzer(tt.model, nil)
			narrative, err := analyzer.Analyze(context.Background(), "岗位", "简历", 60)
			require.Error(t, err)
			assert.Empty(t, narrative)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLLMNarrativeAnalyzer_CustomPromptTemplate(t *testing.T) {
	chatModel := &fakeChatModel{content: `{"narrative": "ok"}`}
	analyzer := parser.NewLLMNarrativeAnalyzer(chatModel, nil,
		parser.WithNarrativePromptTemplate("JD:%s CV:%s SCORE:%.1f"))

	_, err := analyzer.Analyze(context.Background(), "jd-text", "cv-text", 42)
	require.NoError(t, err)
	assert.Equal(t, "JD:jd-text CV:cv-text SCORE:42.0", chatModel.lastMessages[1].Content)
}
