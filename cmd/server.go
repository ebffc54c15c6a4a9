package cmd

import (
	"log"

	"soundsketch/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 SoundSketch HTTP 服务",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting SoundSketch server...")
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
