package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdbridge/mdbridge/internal/bridge"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/remote"
	"github.com/mdbridge/mdbridge/pkg/clock"
	"github.com/spf13/cobra"
)

var styleAge = lipgloss.NewStyle().Faint(true)

func init() {
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List uploaded documents",
	Long:  `List every document uploaded from this vault, most recent first.`,
	Run: func(cmd *cobra.Command, args []string) {
		CheckConfig()
		config := core.CurrentConfig()

		history, err := bridge.LoadHistory(config.HistoryPath())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		records := history.Records()
		if len(records) == 0 {
			fmt.Println("No upload yet. Run 'mdbridge push <note.md>' first.")
			return
		}
		for i := len(records) - 1; i >= 0; i-- {
			record := records[i]
			marker := " "
			if record.IsReferencedDocument {
				marker = "*"
			}
			fmt.Printf("%s %-40q %s %s\n", marker, record.Title, record.URL,
				styleAge.Render(age(record.UploadedAt)))
		}
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <title>",
	Short: "Delete an uploaded document",
	Long:  `Remove a document from the history and delete it on the remote service.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		CheckConfig()
		config := core.CurrentConfig()

		history, err := bridge.LoadHistory(config.HistoryPath())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		record := history.Delete(args[0])
		if record == nil {
			fmt.Fprintf(os.Stderr, "No document found for title %q\n", args[0])
			os.Exit(1)
		}

		client := remote.NewClientFromConfig(config.ConfigFile.Remote)
		if err := client.DeleteDocument(context.Background(), record.Token); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to delete the remote document: %v\n", err)
			os.Exit(1)
		}
		// Referenced documents created alongside go too
		for _, referenced := range record.ReferencedDocuments {
			if err := client.DeleteDocument(context.Background(), referenced.Token); err != nil {
				core.CurrentLogger().Warnf("Unable to delete referenced document %q: %v", referenced.Title, err)
				continue
			}
			history.Delete(referenced.Title)
		}

		if err := history.Save(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %q\n", record.Title)
	},
}

func age(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	elapsed := clock.Now().Sub(date)
	switch {
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}
