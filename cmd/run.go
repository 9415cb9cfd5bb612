package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/filtering"
	"github.com/pfe-helper/pfe-aggregator/internal/listing"
	"github.com/pfe-helper/pfe-aggregator/internal/logger"
	"github.com/pfe-helper/pfe-aggregator/internal/pipeline"
	"github.com/pfe-helper/pfe-aggregator/internal/reftable"
	"github.com/pfe-helper/pfe-aggregator/internal/sources"
	"github.com/pfe-helper/pfe-aggregator/internal/tracker"
)

const (
	PromptYes                 = "Yes"
	PromptNo                  = "No"
	PromptBack                = "back"
	PromptReportByCompany     = "Report by company"
	PromptManualSelect        = "Pick projects one by one"
	PromptAppendToExcludeFile = "Append all projects to exclude file"
	PromptProjectsToFile      = "Dump projects to file"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Proceed with outputs?",
	Items: []string{PromptYes, PromptNo, PromptReportByCompany, PromptManualSelect, PromptProjectsToFile},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, score and select PFE projects, then publish them",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("top", 0, "keep only the first N projects after fitness and date selection")
	runCmd.Flags().Int("limit", 0, "hard cap on processed projects, applied after selection")
	runCmd.Flags().String("fitness", "", "comma-separated fitness levels to keep, e.g. 'High,Medium'")
	runCmd.Flags().Int("since-days", 0, "keep only projects scraped within the last N days")
	runCmd.Flags().Bool("post-telegram", false, "post selected projects to Telegram")
	runCmd.Flags().Bool("create-issues", false, "create GitHub issues for selected projects")
	runCmd.Flags().Bool("generate-emails", false, "generate email drafts for selected projects")
	runCmd.Flags().Bool("save-csv", false, "save selected projects to the aggregated CSV")
	runCmd.Flags().Bool("force", false, "overwrite the aggregated CSV if it exists")
	runCmd.Flags().String("update-status", "", "update tracker status and exit, e.g. 'my-id:contacted'")
	runCmd.Flags().Bool("ignore-exclude-file", false, "do not drop projects listed in the exclude file")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before publishing")
	runCmd.Flags().StringP("exclude-file", "e", "", "file with projects to exclude. Default is unset.")

	viper.BindPFlag("exclude-file", runCmd.Flags().Lookup("exclude-file"))
}

// runOptions are the run flags resolved against the configuration.
type runOptions struct {
	criteria        *filtering.Config
	limit           int
	ignoreExclude   bool
	autoApprove     bool
	postTelegram    bool
	createIssues    bool
	generateEmails  bool
	saveCSV         bool
	force           bool
	updateStatusArg string
}

func run(cmd *cobra.Command) {
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

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	opts, err := parseRunOptions(cmd, config, time.Now())
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	store := tracker.New(config.Tracker, logger)

	if opts.updateStatusArg != "" {
		id, status, err := parseStatusArg(opts.updateStatusArg)
		if err != nil {
			logger.Fatal("parsing --update-status", zap.Error(err))
		}
		if err := updateStatus(store, id, status, logger); err != nil {
			logger.Fatal("updating status", zap.Error(err))
		}
		return
	}

	logger.Info("starting the pfe-aggregator", zap.String("version", version))

	table, err := reftable.Load(config.Reference, logger)
	if err != nil {
		logger.Fatal("loading reference table", zap.Error(err))
	}

	known, err := store.Index()
	if err != nil {
		logger.Fatal("reading tracker", zap.Error(err))
	}

	listings := sources.Collect(ctx, buildSources(config, logger), time.Now(), logger)

	res, err := pipeline.New(store, logger).Run(ctx, pipeline.Input{
		Listings: listings,
		Table:    table,
		Criteria: opts.criteria,
		Limit:    opts.limit,
	})
	if err != nil {
		logger.Fatal("running the pipeline", zap.Error(err))
	}

	if res.EmptyInput {
		logger.Error("exiting", zap.String("reason", "no projects collected"))
		os.Exit(1)
	}

	projects := &listing.Projects{Items: res.Projects}
	if projects.Len() == 0 {
		logger.Warn("exiting", zap.String("reason", "no projects left after filtering"))
		return
	}

	logger.Info("projects selected",
		zap.String("run_id", res.RunID),
		zap.Int("count", projects.Len()),
		zap.Int("already tracked", countKnown(projects, known)),
		zap.String("tracker", store.Path()),
	)

	publisher := newPublisher(ctx, config, opts, store, logger)

	action := PromptYes
	for {
		if !opts.autoApprove {
			_, action, err = prompt.Run()
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
		}

		logger.Info("current list of projects", zap.Int("count", projects.Len()))

		if err := handleAction(ctx, action, publisher, config, projects, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}

		if opts.autoApprove {
			return
		}
	}
}

func handleAction(ctx context.Context, action string, pub *publisher, config *Config, projects *listing.Projects, logger *zap.Logger) error {
	switch action {
	case PromptYes:
		if err := pub.Publish(ctx, projects.Items); err != nil {
			return err
		}
		return errExit
	case PromptNo:
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return errExit
	case PromptManualSelect:
		return manualSelect(ctx, pub, config, projects, logger)
	case PromptReportByCompany:
		pretty, _ := json.MarshalIndent(projects.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("projects count", projects.Len()))
		return nil
	case PromptProjectsToFile:
		filename, err := projects.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func manualSelect(ctx context.Context, pub *publisher, config *Config, projects *listing.Projects, logger *zap.Logger) error {
	for {
		items := make([]string, 0, projects.Len()+2)
		for _, p := range projects.Items {
			items = append(items, fmt.Sprintf("%s / %s / %s / %s", p.ProjectID, p.Title, p.Company, p.Fitness))
		}

		if config.ExcludeFile != "" && projects.Len() != 0 {
			items = append(items, PromptAppendToExcludeFile)
		}

		projectPrompt := promptui.Select{
			Label: "Choose a project and press ENTER",
			Items: append(items, PromptBack),
		}

		_, selected, err := projectPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptBack:
			return nil
		case PromptAppendToExcludeFile:
			excluded, err := listing.GetExcludedProjectsFromFile(config.ExcludeFile)
			if err != nil {
				return err
			}

			excluded.Append(projects.ToExcluded(time.Now()))

			if err = excluded.ToFile(config.ExcludeFile); err != nil {
				return err
			}

			logger.Info("appended to exclude file", zap.String("filename", config.ExcludeFile))

			projects.Exclude(listing.ProjectIDField, excluded.ProjectIDs())
		default:
			projectID := strings.Split(selected, " / ")[0]

			project := projects.FindByID(projectID)
			if project == nil {
				return fmt.Errorf("there is no such project id %s", projectID)
			}

			if err = pub.Publish(ctx, []*listing.Project{project}); err != nil {
				return err
			}

			projects.Exclude(listing.ProjectIDField, []string{projectID})
		}
	}
}

func parseRunOptions(cmd *cobra.Command, config *Config, now time.Time) (*runOptions, error) {
	flags := cmd.Flags()
	opts := &runOptions{}

	var err error
	get := func(name string) bool {
		v, e := flags.GetBool(name)
		if e != nil && err == nil {
			err = e
		}
		return v
	}
	opts.ignoreExclude = get("ignore-exclude-file")
	opts.autoApprove = get("auto-approve")
	opts.postTelegram = get("post-telegram")
	opts.createIssues = get("create-issues")
	opts.generateEmails = get("generate-emails")
	opts.saveCSV = get("save-csv")
	opts.force = get("force")
	if err != nil {
		return nil, err
	}

	if opts.updateStatusArg, err = flags.GetString("update-status"); err != nil {
		return nil, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}

	fitnessArg, err := flags.GetString("fitness")
	if err != nil {
		return nil, err
	}
	top, err := flags.GetInt("top")
	if err != nil {
		return nil, err
	}
	sinceDays, err := flags.GetInt("since-days")
	if err != nil {
		return nil, err
	}

	opts.criteria = buildCriteria(config, fitnessArg, top, sinceDays, opts.ignoreExclude, now)
	return opts, nil
}

// buildCriteria merges flags over the select section of the configuration.
// Flags win when set.
func buildCriteria(config *Config, fitnessArg string, top, sinceDays int, ignoreExclude bool, now time.Time) *filtering.Config {
	criteria := &filtering.Config{
		Fitness:          config.Select.Fitness,
		Top:              config.Select.Top,
		ExcludeCompanies: config.Exclude.Companies,
		ExcludeFile:      config.ExcludeFile,
	}

	if fitness := filtering.ParseFitnessFilter(fitnessArg); fitness != nil {
		criteria.Fitness = fitness
	}
	if top > 0 {
		criteria.Top = top
	}
	if sinceDays <= 0 {
		sinceDays = config.Select.SinceDays
	}
	criteria.Since = filtering.SinceDays(sinceDays, now)

	if ignoreExclude {
		criteria.ExcludeFile = ""
	}
	return criteria
}

func buildSources(config *Config, logger *zap.Logger) []sources.Source {
	urls := config.Sources.URLs
	if len(urls) == 0 {
		urls = sources.DefaultURLs
	}

	var statusLog *sources.LinkStatusLog
	if config.Output.LinkStatus != "" {
		statusLog = sources.NewLinkStatusLog(config.Output.LinkStatus)
	}
	fetcher := sources.NewFetcher(config.Fetcher, statusLog, logger)

	list := make([]sources.Source, 0, len(urls)+len(config.Sources.PDFs))
	for _, u := range urls {
		list = append(list, sources.NewWeb(u, fetcher, logger))
	}

	extractor := sources.Pdftotext{Binary: config.Pdftotext}
	for _, path := range config.Sources.PDFs {
		list = append(list, sources.NewPDF(path, extractor, logger))
	}
	if len(config.Sources.PDFs) == 0 {
		logger.Info("no PFE PDF configured; skipping PDF parsing")
	}
	return list
}

func countKnown(projects *listing.Projects, known map[string]tracker.Record) int {
	n := 0
	for _, p := range projects.Items {
		if _, ok := known[p.ProjectID]; ok {
			n++
		}
	}
	return n
}

// redacted returns a copy of config that is safe to log.
func redacted(config *Config) *Config {
	c := *config
	if config.Telegram != nil && config.Telegram.Token != "" {
		tg := *config.Telegram
		tg.Token = "***"
		c.Telegram = &tg
	}
	if config.GitHub != nil && config.GitHub.Token != "" {
		gh := *config.GitHub
		gh.Token = "***"
		c.GitHub = &gh
	}
	return &c
}
