package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Logger 全局日志实例，应用中其他地方可以直接使用
	Logger = log.Logger
)

// Config 日志配置
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // debug, info, warn, error
	Format       string `json:"format" yaml:"format"`               // json 或 pretty
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 时间戳格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否记录调用位置
}

// Init 根据配置初始化日志系统，并替换全局logger
func Init(config Config) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if config.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: config.TimeFormat,
			NoColor:    false,
		}
	}

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	contextLogger := zerolog.New(output).
		Level(level).
		With().
		Timestamp()

	if config.ReportCaller {
		contextLogger = contextLogger.Caller()
	}

	Logger = contextLogger.Logger()
	log.Logger = Logger
}

// Debug 开始一条调试级别的日志事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 开始一条信息级别的日志事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 开始一条警告级别的日志事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 开始一条错误级别的日志事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 开始一条致命错误级别的日志事件，记录后程序将退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文中获取日志记录器（如果存在）
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 将全局日志记录器注入上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}

// FromContext 获取上下文中的日志记录器，同时带上当前trace信息
func FromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled && Logger.GetLevel() != zerolog.Disabled {
		l = &Logger
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traced := l.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
		return &traced
	}
	return l
}

// WithSubmissionUUID 将submission_uuid写入上下文logger，后续日志自动携带
func WithSubmissionUUID(ctx context.Context, submissionUUID string) context.Context {
	l := FromContext(ctx).With().Str("submission_uuid", submissionUUID).Logger()
	return l.WithContext(ctx)
}

// WithJobID 将job_id写入上下文logger
func WithJobID(ctx context.Context, jobID string) context.Context {
	l := FromContext(ctx).With().Str("job_id", jobID).Logger()
	return l.WithContext(ctx)
}
