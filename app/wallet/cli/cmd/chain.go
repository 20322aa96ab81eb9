package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var tipCmd = &cobra.Command{
	Use:   "tip",
	Short: "Print the chain tip the client is synced to",
	Run:   tipRun,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync round against the node",
	Run:   syncRun,
}

var headerCmd = &cobra.Command{
	Use:   "header <block>",
	Short: "Print a tracked block header",
	Args:  cobra.ExactArgs(1),
	Run:   headerRun,
}

func init() {
	rootCmd.AddCommand(tipCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(headerCmd)
}

func tipRun(cmd *cobra.Command, args []string) {
	if err := get("/v1/chain/tip"); err != nil {
		log.Fatal(err)
	}
}

func syncRun(cmd *cobra.Command, args []string) {
	if err := get("/v1/chain/sync"); err != nil {
		log.Fatal(err)
	}
}

func headerRun(cmd *cobra.Command, args []string) {
	if err := get("/v1/chain/header/" + args[0]); err != nil {
		log.Fatal(err)
	}
}
