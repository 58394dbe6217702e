package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"trackhub/internal/catalog"
	"trackhub/internal/config"
	"trackhub/internal/data"
	"trackhub/internal/logger"
)

var logToConsole bool

var rootCmd = &cobra.Command{
	Use:   "trackhub",
	Short: "Event creation backend and terminal wizard for track day organisers",
	Long: `TrackHub lets businesses and enthusiasts publish events with ticket levels,
dates and an image, either through its JSON API or an interactive terminal wizard.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logToConsole, "console", false, "Also write log lines to stdout")
}

// setup loads the environment, resolves paths and starts the logger. The
// terminal wizard never logs to the console since it owns the screen.
func setup(console bool) error {
	config.LoadEnv()
	if err := config.ConfigurePaths(); err != nil {
		return err
	}

	if err := logger.SetupLogger(config.LoggerConfig(console)); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")
	config.LogCurrentEnvironment()
	return nil
}

func openDatabase(ctx context.Context) error {
	if err := data.InitDB(config.DatabasePath()); err != nil {
		return err
	}
	if err := data.CreateTables(); err != nil {
		data.CloseDB()
		return err
	}
	return data.Ping(ctx)
}

// loadCatalog returns the level catalog, read from LEVEL_CATALOG_PATH when set.
func loadCatalog() (*catalog.Service, error) {
	svc := catalog.NewService()
	path := config.CatalogPath()
	if path == "" {
		logger.LogInfo("No level catalog configured, using built-in levels")
		return svc, nil
	}
	if err := svc.LoadFromFile(path); err != nil {
		return nil, err
	}
	return svc, nil
}
