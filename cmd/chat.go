package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kayz/loom/internal/logger"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive console session",
	Run:   runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// consoleSender prints SAY responses to stdout.
type consoleSender struct{}

func (consoleSender) Send(_ context.Context, _ string, text string) error {
	fmt.Println(text)
	return nil
}

func runChat(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("[CHAT] Failed to load config: %v", err)
		os.Exit(1)
	}

	runner, cleanup, err := buildRunner(cfg, consoleSender{})
	if err != nil {
		logger.Error("[CHAT] Failed to start: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Each console session is its own conversation.
	conversationID := uuid.NewString()
	fmt.Println("Type a message, or /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}

		if err := runner.HandleTurn(ctx, conversationID, "console", input); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("[CHAT] Turn failed: %v", err)
		}
	}
}
