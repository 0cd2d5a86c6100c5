package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/surface"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run as a Telegram bot",
	Run:   runTelegram,
}

func init() {
	rootCmd.AddCommand(telegramCmd)
}

func runTelegram(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("[TELEGRAM] Failed to load config: %v", err)
		os.Exit(1)
	}

	token := cfg.Telegram.Token
	if token == "" {
		token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	bot, err := surface.NewTelegram(surface.TelegramConfig{
		Token: token,
		Debug: cfg.Telegram.Debug,
	})
	if err != nil {
		logger.Error("[TELEGRAM] Failed to connect: %v", err)
		os.Exit(1)
	}

	runner, cleanup, err := buildRunner(cfg, bot)
	if err != nil {
		logger.Error("[TELEGRAM] Failed to start: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx, runner); err != nil && ctx.Err() == nil {
		logger.Error("[TELEGRAM] Bot stopped: %v", err)
		os.Exit(1)
	}
}
