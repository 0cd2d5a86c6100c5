package surface

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kayz/loom/internal/logger"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	// Token is the bot token from @BotFather.
	Token string
	Debug bool
}

// Telegram listens for Telegram messages and routes each one through a
// Runner. It is also the Sender for SAY commands.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	cancel context.CancelFunc
}

// NewTelegram connects to the Telegram bot API.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("Telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return &Telegram{bot: bot}, nil
}

// Send delivers text to a Telegram chat.
func (t *Telegram) Send(_ context.Context, channelID, text string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %s: %w", channelID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, err = t.bot.Send(msg)
	return err
}

// Run blocks processing updates until the context is cancelled. Each
// incoming message becomes one turn on the runner.
func (t *Telegram) Run(ctx context.Context, runner *Runner) error {
	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	logger.Info("[TELEGRAM] Connected as bot @%s", t.bot.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			if update.Message.From.IsBot {
				continue
			}
			text := update.Message.Text
			if text == "" {
				continue
			}

			channelID := strconv.FormatInt(update.Message.Chat.ID, 10)
			userID := strconv.FormatInt(update.Message.From.ID, 10)
			if err := runner.HandleTurn(ctx, channelID, userID, text); err != nil {
				logger.Error("[TELEGRAM] Turn failed: %v", err)
				reply := tgbotapi.NewMessage(update.Message.Chat.ID, "Something went wrong handling that message.")
				if _, sendErr := t.bot.Send(reply); sendErr != nil {
					logger.Error("[TELEGRAM] Failed to send error notice: %v", sendErr)
				}
			}
		}
	}
}

// Stop cancels the update loop.
func (t *Telegram) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}
