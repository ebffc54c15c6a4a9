package cmd

import (
	"fmt"
	"log"
	"os"

	"soundsketch/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "soundsketch",
	Short: "SoundSketch is an audio feedback platform for work-in-progress music.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting SoundSketch server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
