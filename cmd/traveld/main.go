package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TravelPlanner/internal/api"
	"TravelPlanner/internal/config"
	"TravelPlanner/internal/fixtures"
	"TravelPlanner/internal/job"
	"TravelPlanner/internal/llm"
	"TravelPlanner/internal/llm/openai"
	"TravelPlanner/internal/nlp"
	"TravelPlanner/internal/observability/alerting"
	"TravelPlanner/internal/observability/metrics"
	"TravelPlanner/internal/pipeline"
	"TravelPlanner/internal/providers/amadeus"
	"TravelPlanner/internal/providers/hotelbeds"
	"TravelPlanner/pkg/logger"
)

// main 是 TravelPlanner 守护进程的入口。
func main() {
	configPath := flag.String("config", "", "配置文件路径，默认读取 TRAVEL_CONFIG 或 configs/travelplanner.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("traveld 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	defer logger.Sync()

	// 初始化大模型客户端。
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	fixtureProvider, err := createFixtureProvider(cfg)
	if err != nil {
		return err
	}

	flights := amadeus.NewClient(amadeus.Config{Origin: cfg.Pipeline.Origin})
	hotels := hotelbeds.NewClient(hotelbeds.Config{})

	orchestrator := pipeline.New(
		llmClient,
		nlp.NewResolver(),
		flights,
		hotels,
		pipeline.WithLLMTimeout(cfg.LLMTimeout()),
		pipeline.WithFixtureProvider(fixtureProvider),
	)

	var store job.Store
	switch cfg.Storage.SearchStore.Driver {
	case "", "memory":
		store = job.NewMemoryStore()
	case "mysql":
		mysqlStore, err := job.NewMySQLStore(job.MySQLConfig{
			DSN:             cfg.Storage.SearchStore.DSN,
			MaxOpenConns:    cfg.Storage.SearchStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.SearchStore.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.SearchStore.ConnMaxLifetimeSec) * time.Second,
		})
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.SearchStore.Driver)
	}

	var queue job.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = job.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := job.NewRedisQueue(job.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}

	// Service.Close 会一并关闭存储与队列。
	service := job.NewService(store, queue, cfg.Storage.SearchStore.MaxRetries)
	defer func() {
		if err := service.Close(); err != nil {
			logger.L().Warn("关闭任务服务失败", "error", err)
		}
	}()

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.Slack.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhookSender(cfg.Alerting.Slack.WebhookURL),
			ChannelID: cfg.Alerting.Slack.Channel,
		})
	}

	processor := job.NewProcessor(orchestrator, store, queue, queue,
		job.WithWorkerCount(cfg.Queue.Workers),
		job.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", "error", err)
		}
	}()

	go func() {
		if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("指标服务异常退出", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, service, orchestrator)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	// 纯 mock 模式下不需要真实的推理后端。
	if pipeline.ModeFromEnv() == pipeline.ModeMock {
		return nil, nil
	}

	apiKey := cfg.OpenAIAPIKey()
	if apiKey == "" {
		return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
	}
	return openai.NewClient(openai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.OpenAI.BaseURL,
		Model:   cfg.LLM.OpenAI.Model,
		Timeout: cfg.OpenAITimeout(),
	})
}

func createFixtureProvider(cfg *config.Config) (*fixtures.Provider, error) {
	if cfg.Pipeline.FixturePath == "" {
		return fixtures.Default(), nil
	}
	return fixtures.LoadStaticProvider(cfg.Pipeline.FixturePath)
}
