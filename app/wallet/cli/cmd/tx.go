package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var txStatus string

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Manage the transactions tracked by the client",
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the tracked transactions",
	Run:   txListRun,
}

var txDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Abandon a pending transaction",
	Args:  cobra.ExactArgs(1),
	Run:   txDiscardRun,
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txListCmd)
	txCmd.AddCommand(txDiscardCmd)
	txListCmd.Flags().StringVarP(&txStatus, "status", "s", "", "Filter transactions by status.")
}

func txListRun(cmd *cobra.Command, args []string) {
	path := "/v1/tx/list"
	if txStatus != "" {
		path += "?status=" + txStatus
	}

	if err := get(path); err != nil {
		log.Fatal(err)
	}
}

func txDiscardRun(cmd *cobra.Command, args []string) {
	if err := post("/v1/tx/discard/"+args[0], struct{}{}); err != nil {
		log.Fatal(err)
	}
}
