package cmd

import (
	"fmt"
	"os"

	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Init a new vault",
	Long:  `Set up the local directory as the root of a new mdbridge vault.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to read current working directory: %v\n", err)
			os.Exit(1)
		}
		_, err = core.InitConfigFromDirectory(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error while initializing configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Initialized empty vault. Edit .mdbridge/config.toml to declare the remote endpoint.")
	},
}
