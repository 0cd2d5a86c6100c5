package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

var renderInput string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect prompt templates",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates in the prompts folder",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			logger.Error("[PROMPTS] Failed to load config: %v", err)
			os.Exit(1)
		}
		names, err := buildManager(cfg).ListPrompts()
		if err != nil {
			logger.Error("[PROMPTS] Failed to list templates: %v", err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var promptsRenderCmd = &cobra.Command{
	Use:   "render <name>",
	Short: "Render a template as text against empty state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			logger.Error("[PROMPTS] Failed to load config: %v", err)
			os.Exit(1)
		}
		manager := buildManager(cfg)
		template, err := manager.GetPrompt(args[0])
		if err != nil {
			logger.Error("[PROMPTS] %v", err)
			os.Exit(1)
		}
		tokenizer, err := tokens.NewGPTTokenizer("")
		if err != nil {
			logger.Error("[PROMPTS] %v", err)
			os.Exit(1)
		}

		mem := state.NewTurnState()
		if renderInput != "" {
			mem.Set("temp.input", renderInput)
		}
		maxInput := template.Config.Completion.MaxInputTokens
		if maxInput <= 0 {
			maxInput = 2048
		}
		rendered, err := template.Prompt.RenderAsText(context.Background(), mem, manager, tokenizer, maxInput)
		if err != nil {
			logger.Error("[PROMPTS] Failed to render %s: %v", args[0], err)
			os.Exit(1)
		}
		if rendered.TooLong {
			logger.Warn("[PROMPTS] Rendered prompt exceeds the input budget (%d tokens)", rendered.Length)
		}
		fmt.Println(rendered.Output)
	},
}

func init() {
	promptsRenderCmd.Flags().StringVar(&renderInput, "input", "",
		"Value for the user input variable while rendering")
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsRenderCmd)
	rootCmd.AddCommand(promptsCmd)
}
