package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdbridge/mdbridge/internal/bridge"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/internal/remote"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var (
	pushSmartUpdate bool
	pushLinks       bool
	pushPublic      bool
	pushOpen        bool
	pushDryRun      bool
)

var (
	styleStep    = lipgloss.NewStyle().Faint(true)
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleFailure = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func init() {
	pushCmd.Flags().BoolVar(&pushSmartUpdate, "smart-update", true, "update the previous document in place when possible")
	pushCmd.Flags().BoolVar(&pushLinks, "links", true, "upload wiki-linked notes and rewrite the links")
	pushCmd.Flags().BoolVar(&pushPublic, "public", false, "share the document publicly after upload")
	pushCmd.Flags().BoolVar(&pushOpen, "open", false, "open the document in the browser after upload")
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "analyze the note without touching the remote service")
	rootCmd.AddCommand(pushCmd)
}

var pushCmd = &cobra.Command{
	Use:   "push <note.md>",
	Short: "Upload a note to the remote document service",
	Long: `Convert a Markdown note into a remote document: wiki-links resolved,
blocks reordered to match the source, images attached, callouts styled.
Pushing the same note again updates the previous document instead of
creating a duplicate.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		CheckConfig()
		config := core.CurrentConfig()
		config.DryRun = pushDryRun

		path, err := filepath.Abs(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, styleFailure.Render(fmt.Sprintf("Invalid path: %v", err)))
			os.Exit(1)
		}
		file, err := markdown.ParseFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, styleFailure.Render(fmt.Sprintf("Unable to read note: %v", err)))
			os.Exit(1)
		}

		client := remote.NewClientFromConfig(config.ConfigFile.Remote)
		uploader, err := bridge.NewUploader(config, client)
		if err != nil {
			fmt.Fprintln(os.Stderr, styleFailure.Render(err.Error()))
			os.Exit(1)
		}

		opts := bridge.Options{
			SmartUpdate:  pushSmartUpdate,
			ResolveLinks: pushLinks,
		}
		if pushPublic {
			opts.Permissions = &remote.Permissions{Public: true, AllowCopy: true, AllowDuplicate: true}
		}

		result, err := uploader.Upload(context.Background(), file, opts, func(message string) {
			fmt.Println(styleStep.Render(message))
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, styleFailure.Render(failureSummary(err)))
			os.Exit(1)
		}
		if result.Document == nil {
			// Dry run
			return
		}

		fmt.Println(styleSuccess.Render(fmt.Sprintf("✓ %s", result.Document.URL)))
		for _, secondary := range result.Secondary {
			fmt.Println(styleStep.Render(fmt.Sprintf("  also uploaded %q => %s", secondary.Title, secondary.URL)))
		}
		if pushOpen {
			if err := browser.OpenURL(result.Document.URL); err != nil {
				core.CurrentLogger().Warnf("Unable to open the browser: %v", err)
			}
		}
	},
}

// failureSummary turns a pipeline error into a one-line, category-aware
// message.
func failureSummary(err error) string {
	switch remote.Classify(err) {
	case remote.CategoryTimeout:
		return fmt.Sprintf("The remote service timed out; the document may be partially created: %v", err)
	case remote.CategoryNetwork:
		return fmt.Sprintf("Network failure while talking to the remote service: %v", err)
	case remote.CategoryAuth:
		return fmt.Sprintf("The configured app credentials were rejected; check [remote] in .mdbridge/config.toml: %v", err)
	case remote.CategoryFolderConfig:
		return fmt.Sprintf("The configured folder does not exist; check folder_token in .mdbridge/config.toml: %v", err)
	default:
		return err.Error()
	}
}
