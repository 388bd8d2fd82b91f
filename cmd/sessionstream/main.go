package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sessionstream",
	Short: "Background streaming session keeper",
	Long: `sessionstream keeps long-lived streaming sessions alive while the host
application is backgrounded: it holds a bounded execution guarantee, emits a
periodic poll signal, and snapshots opaque stream state against teardown.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		lvl, _ := cmd.Flags().GetString("log-level")
		if lvl != "" {
			parsed, err := zerolog.ParseLevel(lvl)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(parsed)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(*cobra.Command, []string) {
		fmt.Println(version)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Global log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
