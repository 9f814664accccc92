package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentPay/internal/api"
	"AgentPay/internal/config"
	"AgentPay/internal/observability/alerting"
	"AgentPay/internal/observability/metrics"
	"AgentPay/internal/payproto"
	"AgentPay/internal/svcauth"
	"AgentPay/internal/task"
	"AgentPay/internal/workflow"
	"AgentPay/pkg/logger"
)

// main 是任务编排守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentpayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "agentpay.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	signer := svcauth.New(svcauth.Config{
		Secret:  cfg.ServiceAuth.Secret,
		Issuer:  cfg.ServiceAuth.Issuer,
		Service: "agentpayd",
		TTL:     time.Duration(cfg.ServiceAuth.TTLSeconds) * time.Second,
	})

	marketClient, err := payproto.NewMarketClient(payproto.ClientConfig{
		BaseURL:       cfg.Clients.MarketURL,
		Timeout:       cfg.Clients.Timeout(),
		RetryAttempts: cfg.Clients.RetryAttempts,
		RetryBackoff:  cfg.Clients.RetryBackoff(),
		Credential:    signer.Credential(),
	})
	if err != nil {
		return err
	}
	tokenClient, err := payproto.NewTokenClient(payproto.ClientConfig{
		BaseURL:       cfg.Clients.TokenServiceURL,
		Timeout:       cfg.Clients.Timeout(),
		RetryAttempts: cfg.Clients.RetryAttempts,
		RetryBackoff:  cfg.Clients.RetryBackoff(),
		Credential:    signer.Credential(),
	})
	if err != nil {
		return err
	}

	var taskStore task.Store
	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		taskStore = task.NewMemoryStore()
	case "mysql":
		store, err := task.NewMySQLStore(cfg.Storage.TaskStore.DSN)
		if err != nil {
			return err
		}
		taskStore = store
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}
	defer func() {
		if taskStore != nil {
			_ = taskStore.Close()
		}
	}()

	var taskQueue task.Queue
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		taskQueue = task.NewMemoryQueue(1024)
	case "redis":
		queue, err := task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.TaskQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	case "rabbitmq":
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.TaskQueue.RabbitMQ.URL,
			Queue:      cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch:   cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:    cfg.TaskQueue.RabbitMQ.Durable,
			AutoDelete: cfg.TaskQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Driver)
	}
	defer func() {
		if taskQueue != nil {
			if err := taskQueue.Close(); err != nil {
				log.Printf("关闭任务队列失败: %v", err)
			}
		}
	}()

	executor := workflow.New(marketClient, tokenClient)
	taskService := task.NewService(taskStore, taskQueue)
	processor := task.NewProcessor(executor, taskStore, taskQueue,
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithAlertDispatcher(alerting.NewFanout(alerting.LogNotifier{})),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("任务处理器异常退出: %v", err)
		}
	}()

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, taskService)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
