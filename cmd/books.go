package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/books"
	"github.com/pfe-helper/pfe-aggregator/internal/export"
	"github.com/pfe-helper/pfe-aggregator/internal/logger"
	"github.com/pfe-helper/pfe-aggregator/internal/secrets"
	"github.com/pfe-helper/pfe-aggregator/internal/sources"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Announce recently published PFE books on Telegram",
	Run: func(cmd *cobra.Command, _ []string) {
		runBooks(cmd)
	},
}

func init() {
	rootCmd.AddCommand(booksCmd)

	booksCmd.Flags().Int("window-days", 0, "announce books published within the last N days")
	viper.BindPFlag("books.window-days", booksCmd.Flags().Lookup("window-days"))
}

func runBooks(_ *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	token, err := secrets.Load(secrets.Source{
		Name:  "telegram bot token",
		Value: config.Telegram.Token,
		File:  config.Telegram.TokenFile,
		Env:   "TELEGRAM_BOT_TOKEN",
	})
	if err != nil {
		logger.Fatal("loading telegram token", zap.Error(err))
	}
	if config.Telegram.ChatID == "" {
		logger.Fatal("telegram chat id is not configured")
	}

	fetcher := sources.NewFetcher(config.Fetcher, nil, logger)
	catalogue := books.NewCatalogue(fetcher, logger)
	if config.Books.URL != "" {
		catalogue.BaseURL = config.Books.URL
	}
	if config.Books.MaxPages > 0 {
		catalogue.MaxPages = config.Books.MaxPages
	}

	telegram := export.NewTelegram(export.TelegramConfig{Token: token, ChatID: config.Telegram.ChatID}, logger)

	notifier := books.NewNotifier(catalogue, telegram, config.Books.State, logger)
	if config.Books.WindowDays > 0 {
		notifier.WindowDays = config.Books.WindowDays
	}

	sent, err := notifier.Run(ctx)
	if err != nil {
		logger.Fatal("announcing books", zap.Error(err))
	}
	logger.Info("books announced", zap.Int("count", sent))
}
