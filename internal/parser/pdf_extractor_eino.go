package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 从简历PDF中提取纯文本
type EinoPDFTextExtractor struct {
	parser *pdf.PDFParser
	logger *log.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = logger
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 不按页分割，简历需要作为整篇连续文本交给下游的画像构建
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser: p,
		logger: log.New(os.Stderr, "[PDF解析器] ", log.LstdFlags),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// ExtractFromFile 从PDF文件提取文本, 实现 processor.PDFExtractor 接口
func (e *EinoPDFTextExtractor) ExtractFromFile(ctx context.Context, filePath string) (string, map[string]interface{}, error) {
	startTime := time.Now()
	e.logger.Printf("开始处理PDF文件: %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open PDF file %s: %w", filePath, err)
	}
	defer file.Close()

	if fileInfo, statErr := file.Stat(); statErr == nil {
		e.logger.Printf("PDF文件大小: %.2f MB", float64(fileInfo.Size())/1024/1024)
	}

	extraMeta := map[string]interface{}{
		"source_file_path": filePath,
		"extraction_time":  time.Now().Format(time.RFC3339),
	}

	text, metadata, err := e.ExtractTextFromReader(ctx, file, filePath, extraMeta)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF处理失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", nil, err
	}

	e.logger.Printf("PDF处理完成: 提取了 %d 个字符 (用时 %.2f秒)", len(text), duration.Seconds())
	return text, metadata, nil
}

// ExtractTextFromReader 从 io.Reader 中提取文本
func (e *EinoPDFTextExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string, extraMeta map[string]interface{}) (string, map[string]interface{}, error) {
	if extraMeta == nil {
		extraMeta = make(map[string]interface{})
	}

	startTime := time.Now()
	e.logger.Printf("开始从Reader提取PDF文本 (URI: %s)", uri)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("从Reader提取PDF失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", extraMeta, fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", extraMeta, fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}
	if len(docs) > 1 {
		e.logger.Printf("注意: 返回了多个文档 (%d)", len(docs))
	}

	// ToPages=false 时通常只有一个文档，兜底合并
	var fullContent string
	for i, doc := range docs {
		fullContent += doc.Content
		if i < len(docs)-1 {
			fullContent += "\n\n"
		}
	}

	finalMetadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		for k, v := range docs[0].MetaData {
			finalMetadata[k] = v
		}
	}
	for k, v := range extraMeta {
		finalMetadata[k] = v
	}
	finalMetadata["processing_duration_ms"] = duration.Milliseconds()
	finalMetadata["text_length"] = len(fullContent)

	e.logger.Printf("PDF提取完成: 提取了 %d 个字符 (用时 %.2f秒)", len(fullContent), duration.Seconds())
	return fullContent, finalMetadata, nil
}

// ExtractTextFromBytes 从字节数组提取文本内容
func (e *EinoPDFTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, extraMeta map[string]interface{}) (string, map[string]interface{}, error) {
	return e.ExtractTextFromReader(ctx, bytes.NewReader(data), uri, extraMeta)
}
