package main

import (
	"context"
	"fmt"
	"time"

	"ai_chat_relay/internal/clients/ollama"
	"ai_chat_relay/internal/services"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "列出Ollama上可用的模型",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ollama.NewClient(ollama.Config{Host: cfg.Ollama.Host})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		catalog := services.NewModelCatalog(client, cfg.Ollama.FallbackModels)
		names, err := catalog.Refresh(ctx)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "获取模型列表失败（%v），显示备用列表\n", err)
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}
