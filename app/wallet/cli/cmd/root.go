// Package cmd contains wallet app
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var url string

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8280", "Url of the client service.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Your simple rollup wallet",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// get performs a GET against the client service and pretty prints the
// response body.
func get(path string) error {
	resp, err := http.Get(url + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return print(resp)
}

// post performs a POST against the client service and pretty prints the
// response body.
func post(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := http.Post(url+path, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return print(resp)
}

func print(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(out.String())
	return nil
}
