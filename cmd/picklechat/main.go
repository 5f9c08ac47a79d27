// Package main is the entry point for the PickleChat CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PickleChat/internal/chatbot"
	"PickleChat/internal/config"

	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := rootCmd()
	rootCmd.AddCommand(
		listCmd(),
		showCmd(),
		deleteCmd(),
		deleteAllCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "picklechat",
		Short: "Chat with Pickle, in text or as a voice call",
		Long: `PickleChat keeps a list of persistent text conversations with an
assistant named Pickle and offers a voice call mode whose transcript is kept
apart from the saved chats.

Set PICKLE_API_KEY (or put it in .env) before starting an interactive session.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bot, err := chatbot.NewChatBot(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize chatbot: %w", err)
			}
			return bot.Run(ctx)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")

	local := cmd.Flags()
	local.StringVar(&cfg.ConversationID, "conversation", "", "Open an existing conversation by ID")
	local.StringVar(&cfg.Model, "model", cfg.Model, "Completion model")
	local.BoolVar(&cfg.CacheResponses, "cache", cfg.CacheResponses, "Cache identical completion requests in memory")
	local.StringVar(&cfg.EventsAddr, "events-addr", cfg.EventsAddr, "Serve the WebSocket event feed on this address (e.g. :8089)")
	local.DurationVar(&cfg.RevealDelay, "reveal-delay", cfg.RevealDelay, "Delay between revealed words of a reply")
	local.StringVar(&cfg.SpeechCommand, "speech-command", cfg.SpeechCommand, "Text-to-speech program used during calls (e.g. espeak)")

	return cmd
}
