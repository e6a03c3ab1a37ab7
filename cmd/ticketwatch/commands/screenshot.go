package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andres10976/ticketwatch/internal/service/browser"
)

var (
	screenshotOut    string
	screenshotWidth  int
	screenshotHeight int
)

func init() {
	flags := screenshotCmd.Flags()
	flags.StringVarP(&screenshotOut, "out", "o", filepath.Join("images", "top_page.png"), "output PNG path")
	flags.IntVar(&screenshotWidth, "width", 1280, "window width")
	flags.IntVar(&screenshotHeight, "height", 1600, "window height")
	rootCmd.AddCommand(screenshotCmd)
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot [--out <path.png>]",
	Short: "Renders the ticket page once and saves a PNG screenshot.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := browserOptions(cfg)
		opts.WindowWidth = screenshotWidth
		opts.WindowHeight = screenshotHeight

		session, err := browser.NewLauncher(opts).Open(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		slog.Info("capturing page", "url", cfg.TargetURL)
		img, err := session.Screenshot(cmd.Context(), cfg.TargetURL)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(screenshotOut), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(screenshotOut, img, 0o644); err != nil {
			return fmt.Errorf("write screenshot: %w", err)
		}
		slog.Info("screenshot saved", "path", screenshotOut, "bytes", len(img))
		return nil
	},
}
