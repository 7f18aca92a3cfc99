package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jmlarsen/skim/internal/config"
	"github.com/jmlarsen/skim/internal/debuglog"
	"github.com/jmlarsen/skim/internal/feed"
	"github.com/jmlarsen/skim/internal/search"
	"github.com/jmlarsen/skim/internal/storage"
	"github.com/jmlarsen/skim/internal/tui"
)

// Version is set at build time.
var Version = "dev"

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
	flagForce    bool
	flagInsecure bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skim",
	Short: "A terminal feed reader",
	Long:  "skim subscribes to RSS, Atom and JSON feeds, keeps a local article archive, and reads it all from the terminal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagDB != "" {
			cfg.Database.Path = flagDB
		}
		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}
		return debuglog.Setup(debuglog.ParseLevel(cfg.Log.Level), cfg.Log.Path)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debuglog.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func runTUI() error {
	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := search.Open(cfg.Database.SearchIndex)
	if err != nil {
		return err
	}
	defer engine.Close()

	coordinator := feed.NewCoordinator(store, cfg)
	coordinator.SetIndexer(engine)
	coordinator.SetForceRefresh(flagForce)
	coordinator.SetPermissiveValidation(flagInsecure)
	coordinator.Start()
	defer coordinator.Stop()

	app := tui.NewApp(store, coordinator, engine, cfg)
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().BoolVar(&flagForce, "force", false, "ignore HTTP caching and refetch everything")
	rootCmd.PersistentFlags().BoolVar(&flagInsecure, "insecure", false, "allow localhost and private-network feed URLs")

	rootCmd.AddCommand(
		newAddCmd(),
		newListCmd(),
		newRemoveCmd(),
		newRenameCmd(),
		newRefreshCmd(),
		newImportCmd(),
		newExportCmd(),
		newSearchCmd(),
		newVersionCmd(),
		newGenerateConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
