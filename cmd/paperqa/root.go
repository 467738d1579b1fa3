package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paper-citations-rag/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "paperqa",
	Short: "Ask cited questions about indexed research papers",
	Long:  "Answers questions over indexed PDFs with an Ollama model, resolving every citation to the sentences, page and text fragments it came from.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
