package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pbrmon/pbrmon/cmd/server"
	"github.com/pbrmon/pbrmon/cmd/watch"
	"github.com/pbrmon/pbrmon/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "pbrmon",
	Short:   "Photobioreactor monitor",
	Long:    `pbrmon - environmental monitor for a photobioreactor: sensor history, grow light and pump control, camera stills`,
	Version: version.Version,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(server.CreateServerCmd())
	rootCmd.AddCommand(watch.WatchCmd)
}
