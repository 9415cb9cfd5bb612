package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pfe-helper/pfe-aggregator/internal/logger"
	"github.com/pfe-helper/pfe-aggregator/internal/tracker"
)

var statusCmd = &cobra.Command{
	Use:   "status <project_id> <status>",
	Short: "Set the tracker status of a project",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		store, logger := trackerFromConfig()
		if err := updateStatus(store, args[0], args[1], logger); err != nil {
			logger.Error("updating status", zap.Error(err))
			os.Exit(1)
		}
	},
}

var setFieldCmd = &cobra.Command{
	Use:   "set-field <project_id> <field> <value>",
	Short: "Set an arbitrary tracker column of a project",
	Args:  cobra.ExactArgs(3),
	Run: func(_ *cobra.Command, args []string) {
		store, logger := trackerFromConfig()

		ok, err := store.UpdateField(args[0], args[1], args[2])
		if err != nil {
			logger.Fatal("updating tracker", zap.Error(err))
		}
		if !ok {
			logger.Error("project not found in tracker", zap.String("project_id", args[0]))
			os.Exit(1)
		}
		logger.Info("tracker updated", zap.String("project_id", args[0]), zap.String("field", args[1]))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setFieldCmd)
}

func trackerFromConfig() (*tracker.Store, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	return tracker.New(config.Tracker, logger), logger
}

// parseStatusArg splits the legacy "project_id:status" form on the first
// colon. Project ids never contain one; statuses are free text and may.
func parseStatusArg(arg string) (string, string, error) {
	id, status, found := strings.Cut(arg, ":")
	id, status = strings.TrimSpace(id), strings.TrimSpace(status)
	if !found || id == "" || status == "" {
		return "", "", fmt.Errorf("expected project_id:status, got %q", arg)
	}
	return id, status, nil
}

type statusUpdater interface {
	UpdateStatus(projectID, status string) (bool, error)
}

func updateStatus(store statusUpdater, id, status string, logger *zap.Logger) error {
	ok, err := store.UpdateStatus(id, status)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("project %s not found in tracker", id)
	}
	logger.Info("status updated", zap.String("project_id", id), zap.String("status", status))
	return nil
}
