package cmd

import (
	"fmt"
	"os"

	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the current configuration",
	Long:  `Print the vault root and the effective configuration, defaults included.`,
	Run: func(cmd *cobra.Command, args []string) {
		CheckConfig()
		config := core.CurrentConfig()

		fmt.Printf("# Vault: %s\n", config.VaultDirectory)
		out, err := toml.Marshal(config.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to render configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}
