package cmd

import (
	"encoding/json"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var noteState string

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage the notes tracked by the client",
}

var noteListCmd = &cobra.Command{
	Use:   "list [id-prefix]",
	Short: "Print the tracked notes",
	Run:   noteListRun,
}

var noteImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a note from a JSON file",
	Args:  cobra.ExactArgs(1),
	Run:   noteImportRun,
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteImportCmd)
	noteListCmd.Flags().StringVarP(&noteState, "state", "s", "", "Filter notes by state.")
}

func noteListRun(cmd *cobra.Command, args []string) {
	path := "/v1/notes/list"
	if len(args) > 0 {
		path += "/" + args[0]
	}
	if noteState != "" {
		path += "?state=" + noteState
	}

	if err := get(path); err != nil {
		log.Fatal(err)
	}
}

func noteImportRun(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatal(err)
	}

	var note map[string]any
	if err := json.Unmarshal(data, &note); err != nil {
		log.Fatal(err)
	}

	if err := post("/v1/notes/import", note); err != nil {
		log.Fatal(err)
	}
}
