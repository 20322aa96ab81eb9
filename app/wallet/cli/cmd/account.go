package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the accounts tracked by the client",
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new local account",
	Run:   accountNewRun,
}

var accountListCmd = &cobra.Command{
	Use:   "list [id-prefix]",
	Short: "Print the tracked accounts",
	Run:   accountListRun,
}

var accountHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the stored versions of an account",
	Args:  cobra.ExactArgs(1),
	Run:   accountHistoryRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountNewCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountHistoryCmd)
}

func accountNewRun(cmd *cobra.Command, args []string) {
	if err := post("/v1/accounts/new", struct{}{}); err != nil {
		log.Fatal(err)
	}
}

func accountListRun(cmd *cobra.Command, args []string) {
	path := "/v1/accounts/list"
	if len(args) > 0 {
		path += "/" + args[0]
	}

	if err := get(path); err != nil {
		log.Fatal(err)
	}
}

func accountHistoryRun(cmd *cobra.Command, args []string) {
	if err := get("/v1/accounts/history/" + args[0]); err != nil {
		log.Fatal(err)
	}
}
