package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-match-go/internal/agent"
	"cv-match-go/internal/api/handler"
	"cv-match-go/internal/api/router"
	"cv-match-go/internal/config"
	appCoreLogger "cv-match-go/internal/logger"
	"cv-match-go/internal/matcher"
	"cv-match-go/internal/parser"
	"cv-match-go/internal/processor"
	"cv-match-go/internal/storage"
	"cv-match-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

// @title CV Match API
// @version 1.0
// @description 岗位-简历匹配打分服务
// @BasePath /api/v1
func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	initLogger(cfg)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenTelemetry 追踪
	shutdownTracer := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		shutdownTracer, err = tracing.InitTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			glog.Fatalf("初始化追踪失败: %v", err)
		}
		glog.Info("OpenTelemetry 追踪初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	aliyunEmbedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		glog.Fatalf("初始化阿里云Embedder失败: %v", err)
	}
	glog.Info("阿里云Embedder初始化成功")

	// 叙述分析器是可选能力，模型初始化失败只降级不退出
	var narrativeAnalyzer matcher.NarrativeAnalyzer
	if cfg.Narrative.Enabled && cfg.Aliyun.APIKey != "" {
		chatModel, err := agent.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, cfg.Aliyun.Model, cfg.Aliyun.APIURL)
		if err != nil {
			glog.Warnf("初始化LLM模型失败，叙述分析不可用: %v", err)
		} else {
			narrativeLogger := newComponentLogger(cfg, "[Narrative] ")
			narrativeOptions := []parser.LLMNarrativeAnalyzerOption{}
			if cfg.Narrative.PromptTemplate != "" {
				narrativeOptions = append(narrativeOptions, parser.WithNarrativePromptTemplate(cfg.Narrative.PromptTemplate))
			}
			narrativeAnalyzer = parser.NewLLMNarrativeAnalyzer(chatModel, narrativeLogger, narrativeOptions...)
			glog.Info("LLM叙述分析器初始化成功")
		}
	}

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(newComponentLogger(cfg, "[EinoPDF] ")))
	if err != nil {
		glog.Fatalf("创建Eino PDF提取器失败: %v", err)
	}
	glog.Info("Eino PDF提取器初始化成功")

	resumeService, err := processor.NewResumeService(cfg, storageManager, pdfExtractor, &appCoreLogger.Logger)
	if err != nil {
		glog.Fatalf("初始化简历解析服务失败: %v", err)
	}
	matchService, err := processor.NewMatchService(cfg, storageManager, aliyunEmbedder, narrativeAnalyzer, &appCoreLogger.Logger)
	if err != nil {
		glog.Fatalf("初始化匹配服务失败: %v", err)
	}
	glog.Info("业务服务初始化成功")

	consumerManager, err := processor.NewConsumerManager(cfg, storageManager, resumeService, matchService, &appCoreLogger.Logger)
	if err != nil {
		glog.Fatalf("初始化消费者管理器失败: %v", err)
	}
	if err := consumerManager.Start(); err != nil {
		glog.Fatalf("启动消费者失败: %v", err)
	}
	glog.Info("消息消费者已启动")

	jdProcessor, err := processor.NewJDProcessor(
		aliyunEmbedder,
		storageManager,
		cfg.Aliyun.Embedding.Model,
		processor.WithJDLogger(newComponentLogger(cfg, "[JDProcessor] ")),
	)
	if err != nil {
		glog.Fatalf("初始化JD处理器失败: %v", err)
	}

	resumeHandler := handler.NewResumeHandler(cfg, storageManager)
	jobHandler := handler.NewJobHandler(cfg, storageManager, jdProcessor)
	matchHandler := handler.NewMatchHandler(cfg, storageManager, matchService)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, resumeHandler, jobHandler, matchHandler)
	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	consumerManager.Stop()
	glog.Info("消息消费者已停止")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		glog.Errorf("追踪导出器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initLogger 初始化 zerolog 并把 Hertz 的 hlog 接到同一个输出上
func initLogger(cfg *config.Config) {
	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	appCoreLogger.Logger = appCoreLogger.Logger.With().
		Str("app", "cv-match-go").
		Logger()

	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	switch cfg.Logger.Level {
	case "debug":
		glog.SetLevel(glog.LevelDebug)
	case "warn":
		glog.SetLevel(glog.LevelWarn)
	case "error":
		glog.SetLevel(glog.LevelError)
	default:
		glog.SetLevel(glog.LevelInfo)
	}
}

// newComponentLogger debug级别时组件日志打到stderr，否则丢弃
func newComponentLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.Logger.Level == "debug" {
		return log.New(os.Stderr, prefix, log.LstdFlags|log.Lshortfile)
	}
	return log.New(io.Discard, "", 0)
}
