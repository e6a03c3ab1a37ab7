package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andres10976/ticketwatch/internal/config"
	"github.com/andres10976/ticketwatch/internal/service/browser"
)

var (
	configFile string
	targetURL  string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ticketwatch",
	Short: "ticketwatch polls a ticket sales page and sends a LINE message when tickets become available.",
	Long: `ticketwatch renders the configured ticket page on a fixed interval, extracts
the status of every tracked ticket, broadcasts a LINE message when a ticket
becomes available and appends every observation to a daily CSV log.

Targets are read from the config file (JSON or JSON5) before every check, so
edits take effect without a restart.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings(cmd)
	},
	RunE: runMonitor,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "target file (default $CONFIG_FILE or config.json)")
	flags.StringVar(&targetURL, "url", "", "ticket page URL (default $TARGET_URL)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSettings(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg = config.Load()
	if cmd.Flags().Changed("config") {
		cfg.ConfigFile = configFile
	}
	if cmd.Flags().Changed("url") {
		cfg.TargetURL = targetURL
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	initSlog(cfg.LogFormat, cfg.LogLevel)
	return nil
}

func browserOptions(c *config.Config) browser.Options {
	return browser.Options{
		RemoteURL:   c.BrowserRemoteURL,
		UserDataDir: c.ChromeDataDir,
		Stealth:     c.BrowserStealth,
		LoadTimeout: c.PageLoadTimeout,
		SettleDelay: c.PageSettleDelay,
	}
}

func loadTargets() config.TargetFile {
	return config.LoadTargets(cfg.ConfigFile)
}

func logTargets(tf config.TargetFile) {
	for _, t := range tf.TargetTickets {
		slog.Info("tracking target", "id", t.ID, "name", t.Name, "keywords", t.Keywords)
	}
}
