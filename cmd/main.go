package main

import (
	"log/slog"
	"os"
	"strings"

	"ai_chat_relay/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "ai_chat_relay",
		Short: "Streaming chat relay for a local Ollama server",
		Long: `ai_chat_relay 提供流式对话WebSocket接口，可选Google搜索增强，
同时提供音频转写、文本摘要和笔记整理等HTTP接口。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log)
			return nil
		},
		RunE: runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	rootCmd.AddCommand(serveCmd, modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("程序退出", "error", err)
		os.Exit(1)
	}
}

// setupLogger 根据配置设置默认日志
func setupLogger(logCfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logCfg.Level))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logCfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
