package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pfe-helper/pfe-aggregator/internal/sources"
	"github.com/pfe-helper/pfe-aggregator/internal/tracker"
)

const (
	app = "pfe-aggregator"
)

type Config struct {
	Sources     *SourcesConfig        `mapstructure:"sources"`
	Reference   string                `mapstructure:"reference"`
	Tracker     tracker.Config        `mapstructure:"tracker"`
	ExcludeFile string                `mapstructure:"exclude-file"`
	Exclude     *ExcludeConfig        `mapstructure:"exclude"`
	Select      *SelectConfig         `mapstructure:"select"`
	Fetcher     sources.FetcherConfig `mapstructure:"fetcher"`
	Output      *OutputConfig         `mapstructure:"output"`
	Telegram    *TelegramConfig       `mapstructure:"telegram"`
	GitHub      *GitHubConfig         `mapstructure:"github"`
	Books       *BooksConfig          `mapstructure:"books"`
	Pdftotext   string                `mapstructure:"pdftotext"`
}

type SourcesConfig struct {
	URLs []string `mapstructure:"urls"`
	PDFs []string `mapstructure:"pdfs"`
}

type ExcludeConfig struct {
	Companies []string `mapstructure:"companies"`
}

// SelectConfig holds selection defaults; run flags override them.
type SelectConfig struct {
	Fitness   []string `mapstructure:"fitness"`
	SinceDays int      `mapstructure:"since-days"`
	Top       int      `mapstructure:"top"`
}

type OutputConfig struct {
	Emails     string `mapstructure:"emails"`
	CSV        string `mapstructure:"csv"`
	LinkStatus string `mapstructure:"link-status"`
	CV         string `mapstructure:"cv"`
}

type TelegramConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
	ChatID    string `mapstructure:"chat-id"`
}

type GitHubConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
	Repo      string `mapstructure:"repo"`
}

type BooksConfig struct {
	URL        string `mapstructure:"url"`
	State      string `mapstructure:"state"`
	WindowDays int    `mapstructure:"window-days"`
	MaxPages   int    `mapstructure:"max-pages"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "pfe-aggregator collects PFE internship offers, scores them against a company table and tracks outreach",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"telegram.chat-id": "TELEGRAM_CHAT_ID",
		"github.repo":      "GITHUB_REPO",
		"tracker.path":     "PFE_TRACKER_PATH",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("reference", "data/companies.csv")
	viper.SetDefault("tracker.path", "data/tracker.csv")
	viper.SetDefault("output.emails", "emails")
	viper.SetDefault("output.csv", "data/aggregated_projects.csv")
	viper.SetDefault("output.link-status", "data/link_statuses.csv")
	viper.SetDefault("books.state", "data/pfebooks_state.json")
	viper.SetDefault("pdftotext", "pdftotext")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is pfe-aggregator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config every setting has a default, so a
	// missing file is fine. A file that fails to parse is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Sources == nil {
		config.Sources = &SourcesConfig{}
	}
	if config.Exclude == nil {
		config.Exclude = &ExcludeConfig{}
	}
	if config.Select == nil {
		config.Select = &SelectConfig{}
	}
	if config.Output == nil {
		config.Output = &OutputConfig{}
	}
	if config.Telegram == nil {
		config.Telegram = &TelegramConfig{}
	}
	if config.GitHub == nil {
		config.GitHub = &GitHubConfig{}
	}
	if config.Books == nil {
		config.Books = &BooksConfig{}
	}

	return config, nil
}
