package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentPay/internal/config"
	"AgentPay/internal/svcauth"
	"AgentPay/internal/token"
	"AgentPay/pkg/logger"
)

// main 是支付令牌守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("tokend 运行失败: %v", err)
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

	var ledger token.Ledger
	switch cfg.TokenSvc.Ledger.Driver {
	case "", "memory":
		ledger = token.NewMemoryLedger()
	case "postgres":
		pg, err := token.NewPostgresLedger(ctx, cfg.TokenSvc.Ledger.DSN)
		if err != nil {
			return err
		}
		ledger = pg
	default:
		return fmt.Errorf("未知的令牌台账驱动: %s", cfg.TokenSvc.Ledger.Driver)
	}

	svc := token.NewService(ledger, cfg.TokenSvc.ExpireInSeconds)
	defer func() { _ = svc.Close() }()

	signer := svcauth.New(svcauth.Config{
		Secret:  cfg.ServiceAuth.Secret,
		Issuer:  cfg.ServiceAuth.Issuer,
		Service: "tokend",
		TTL:     time.Duration(cfg.ServiceAuth.TTLSeconds) * time.Second,
	})

	handler := token.NewHandler(svc)
	return serve(ctx, cfg.TokenSvc.Address, handler.Router(signer.Middleware()))
}

// serve 启动 HTTP 服务，直到上下文取消或出现错误。
func serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
