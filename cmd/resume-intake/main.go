package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"resume-intake-go/internal/analyzer"
	"resume-intake-go/internal/api/handler"
	"resume-intake-go/internal/api/router"
	"resume-intake-go/internal/config"
	"resume-intake-go/internal/extractor"
	"resume-intake-go/internal/ingestion"
	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/outbox"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/storage"
	"resume-intake-go/internal/tracing"
	"resume-intake-go/pkg/agent"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath string
		initConfig bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.BoolVar(&initConfig, "init-config", false, "生成示例配置文件后退出")
	pflag.Parse()

	if initConfig {
		target := configPath
		if target == "" {
			target = "config.yaml"
		}
		if err := config.CreateSampleConfig(target); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置文件失败: %v\n", err)
		os.Exit(1)
	}

	initLogger(cfg)

	ctx := context.Background()

	// 链路追踪
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitProvider(ctx, "resume-intake", cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化链路追踪失败，服务继续运行")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()
		}
	}

	// 存储层
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	// 管线组件
	coordinator, err := buildCoordinator(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化摄入管线失败")
	}

	// 出箱事件中继
	var relay *outbox.MessageRelay
	if storageManager.MySQL != nil && storageManager.RabbitMQ != nil {
		if err := declareEventTopology(cfg, storageManager.RabbitMQ); err != nil {
			logger.Fatal().Err(err).Msg("声明事件拓扑失败")
		}

		relayOpts := []outbox.RelayOption{}
		if storageManager.Redis != nil {
			// 多实例部署时单个活跃轮询者
			relayOpts = append(relayOpts, outbox.WithRelayLock(storageManager.Redis))
		}
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayOpts...)
		relay.Start()
		defer relay.Stop()
	} else {
		logger.Warn().Msg("MySQL或RabbitMQ未配置，出箱事件中继未启动")
	}

	// HTTP服务
	hlog.SetLogger(hertzzerolog.New())
	tracer, tracingCfg := hertztracing.NewServerTracer()
	h := server.Default(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(tracingCfg))

	resumeHandler := handler.NewResumeHandler(cfg, coordinator, &resultStoreAdapter{db: storageManager.MySQL})
	batchHandler := handler.NewBatchHandler(coordinator)
	router.RegisterRoutes(h, cfg, resumeHandler, batchHandler)

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("简历摄入服务已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// initLogger 初始化全局日志，配置了文件路径时同时写控制台和文件
func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}

	var writer io.Writer
	if cfg.Logger.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logger.FilePath), 0o755); err == nil {
			if file, err := os.OpenFile(cfg.Logger.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.Logger.TimeFormat}
				writer = zerolog.MultiLevelWriter(console, file)
			}
		}
	}

	if writer != nil {
		logger.InitWithWriter(logConfig, writer)
	} else {
		logger.Init(logConfig)
	}

	logger.Logger = logger.Logger.With().
		Str("app", "resume-intake").
		Logger()
}

// declareEventTopology 声明事件交换机、下游队列及绑定
// 队列在发布方声明，消费方重启期间的事件不会丢失
func declareEventTopology(cfg *config.Config, mq *storage.RabbitMQ) error {
	if err := mq.EnsureExchange(cfg.RabbitMQ.ResumeEventsExchange, "direct", true); err != nil {
		return err
	}
	if err := mq.EnsureQueue(cfg.RabbitMQ.ScoredQueue, true); err != nil {
		return err
	}
	if err := mq.BindQueue(cfg.RabbitMQ.ScoredQueue, cfg.RabbitMQ.ResumeEventsExchange, cfg.RabbitMQ.ScoredRoutingKey); err != nil {
		return err
	}
	if err := mq.EnsureQueue(cfg.RabbitMQ.BatchQueue, true); err != nil {
		return err
	}
	return mq.BindQueue(cfg.RabbitMQ.BatchQueue, cfg.RabbitMQ.ResumeEventsExchange, cfg.RabbitMQ.BatchRoutingKey)
}

// buildCoordinator 装配提取、分析、归档、解析各组件并创建协调器
func buildCoordinator(ctx context.Context, cfg *config.Config, storageManager *storage.Storage) (*pipeline.BulkUploadCoordinator, error) {
	if storageManager.MySQL == nil {
		return nil, fmt.Errorf("MySQL未初始化，摄入管线无法持久化结果")
	}

	// 文本提取
	pdfParser, err := extractor.NewEinoPDFExtractor(ctx,
		extractor.WithPDFTimeout(config.GetDuration(cfg.Extractor.DirectTimeout, 30*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化PDF提取器失败: %w", err)
	}
	ocr := extractor.NewTesseractOCR(
		extractor.WithOCRLanguage(cfg.Extractor.OCRLanguage),
		extractor.WithTessdataDir(cfg.Extractor.TessdataDir),
		extractor.WithOCRTimeout(config.GetDuration(cfg.Extractor.OCRTimeout, 120*time.Second)),
	)
	docx := extractor.NewDocconvDOCXExtractor(
		extractor.WithDOCXTimeout(config.GetDuration(cfg.Extractor.DirectTimeout, 30*time.Second)),
	)
	textExtractor := extractor.NewExtractor(pdfParser, ocr, docx)

	// 结构化分析
	if cfg.Aliyun.APIKey == "" {
		return nil, fmt.Errorf("未配置模型API密钥")
	}
	modelName := cfg.Analyzer.ModelName
	if modelName == "" {
		modelName = cfg.GetModelForTask("resume_analysis")
	}
	chatModel, err := agent.NewAliyunQwenChatModel(
		cfg.Aliyun.APIKey,
		modelName,
		cfg.Aliyun.APIURL,
		agent.WithTemperature(cfg.Analyzer.Temperature),
		agent.WithMaxTokens(cfg.Analyzer.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化对话模型失败: %w", err)
	}
	structuredAnalyzer := analyzer.NewStructuredAnalyzer(chatModel,
		analyzer.WithAnalyzerLogger(logger.Component("analyzer")),
		analyzer.WithCallTimeout(config.GetDuration(cfg.Analyzer.CallTimeout, 60*time.Second)),
	)

	// 远程文件夹解析（可选）
	var resolver pipeline.FolderResolver
	if cfg.GoogleDrive.APIKey != "" || cfg.GoogleDrive.CredentialsFile != "" {
		driveResolver, err := ingestion.NewDriveResolver(ctx, &cfg.GoogleDrive)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Drive解析器失败，远程文件夹上传不可用")
		} else {
			resolver = driveResolver
		}
	}

	comp := &pipeline.Components{
		Extractor:     textExtractor,
		Analyzer:      structuredAnalyzer,
		Store:         &resultStoreAdapter{db: storageManager.MySQL},
		Resolver:      resolver,
		BatchRecorder: storageManager.MySQL,
		JobContexts:   &jobContextAdapter{db: storageManager.MySQL},
	}
	if storageManager.MinIO != nil {
		comp.Archiver = &archiverAdapter{oss: storageManager.MinIO}
	}
	if storageManager.Redis != nil {
		comp.Snapshots = storageManager.Redis
	}

	set := &pipeline.Settings{
		WorkerCount:      cfg.Pipeline.WorkerCount,
		QueueCapacity:    cfg.Pipeline.QueueCapacity,
		JobTimeout:       config.GetDuration(cfg.Pipeline.JobTimeout, 5*time.Minute),
		EventsExchange:   cfg.RabbitMQ.ResumeEventsExchange,
		ScoredRoutingKey: cfg.RabbitMQ.ScoredRoutingKey,
		BatchRoutingKey:  cfg.RabbitMQ.BatchRoutingKey,
		PipelineVersion:  cfg.ActivePipelineVersion,
		Logger:           logger.Component("pipeline"),
	}

	return pipeline.NewBulkUploadCoordinator(comp, set), nil
}
