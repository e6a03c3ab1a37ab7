package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/andres10976/ticketwatch/internal/service/browser"
	"github.com/andres10976/ticketwatch/internal/service/extractor"
	"github.com/andres10976/ticketwatch/internal/service/policy"
)

func init() {
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <page.html>",
	Short: "Runs the status extractor on a saved page and prints the result.",
	Long: `Runs the status extractor against an HTML file saved from the ticket page
using the current target file. Nothing is notified or logged to disk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		doc, err := browser.ParseHTML(string(raw))
		if err != nil {
			return err
		}

		tf := loadTargets()
		if len(tf.TargetTickets) == 0 {
			return fmt.Errorf("no target tickets configured in %s", cfg.ConfigFile)
		}
		res := extractor.Extract(doc, tf.TargetTickets)

		keys := make([]string, 0, len(res.Snapshot))
		for k := range res.Snapshot {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Ticket", "Status", "Available"})
		for _, k := range keys {
			status := res.Snapshot[k]
			t.AppendRow(table.Row{k, status, policy.IsAvailable(status)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		fmt.Fprintf(cmd.OutOrStdout(), "\n%d sections, %d matched, %d tickets, %d skipped blocks\n",
			res.Sections, res.Matched, len(res.Snapshot), res.Skipped)
		return nil
	},
}
