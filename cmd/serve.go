package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"ai_chat_relay/internal/clients/asr"
	"ai_chat_relay/internal/clients/ollama"
	"ai_chat_relay/internal/clients/search"
	"ai_chat_relay/internal/config"
	"ai_chat_relay/internal/handlers"
	"ai_chat_relay/internal/middleware"
	"ai_chat_relay/internal/routes"
	"ai_chat_relay/internal/services"
	"ai_chat_relay/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP和WebSocket服务",
	RunE:  runServe,
}

// app 组装好的服务
type app struct {
	server  *http.Server
	catalog *services.ModelCatalog
}

// newApp 根据配置创建所有组件
func newApp(cfg *config.Config) (*app, error) {
	ollamaClient, err := ollama.NewClient(ollama.Config{Host: cfg.Ollama.Host})
	if err != nil {
		return nil, err
	}
	searchClient := search.NewGoogleClient(search.Config{
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
		Endpoint: cfg.Search.Endpoint,
	})
	whisperClient := asr.NewWhisperClient(asr.WhisperConfig{
		BaseURL: cfg.Whisper.BaseURL,
		Model:   cfg.Whisper.Model,
		APIKey:  cfg.Whisper.APIKey,
	})

	policy := services.NewAugmentationPolicy(services.NewSearchAugmenter(searchClient, cfg.Search.Timeout))
	chatService := services.NewChatService(ollamaClient, policy, services.ChatConfig{
		DefaultModel: cfg.Ollama.DefaultModel,
		Timeout:      cfg.Ollama.Timeout,
	})
	catalog := services.NewModelCatalog(ollamaClient, cfg.Ollama.FallbackModels)

	h := routes.Handlers{
		Chat:    handlers.NewChatHandler(chatService, cfg.WebSocket, cfg.CORS),
		ASR:     handlers.NewASRHandler(services.NewTranscriptionService(whisperClient, cfg.Whisper.Timeout)),
		Summary: handlers.NewSummaryHandler(services.NewSummaryService(ollamaClient, cfg.Ollama.DefaultModel, cfg.Ollama.Timeout)),
		Info:    handlers.NewInfoHandler(catalog, ollamaClient, cfg),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	if err := middleware.Setup(engine, cfg); err != nil {
		return nil, err
	}
	routes.RegisterRoutes(engine, cfg, h)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}
	server.RegisterOnShutdown(h.Chat.Close)

	return &app{server: server, catalog: catalog}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, nil)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	// 启动时刷新一次模型列表，失败时使用备用列表
	if _, err := a.catalog.Refresh(ctx); err != nil {
		slog.Warn("没有从Ollama获取到模型", "error", err)
	}
	if !cfg.SearchConfigured() {
		slog.Warn("未配置Google搜索凭据，搜索增强请求将返回错误")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("服务启动", "addr", cfg.Addr(), "ws", cfg.WebSocket.Path, "ollama", cfg.Ollama.Host)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常退出: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭HTTP服务失败: %w", err)
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("服务已停止")
	return nil
}
