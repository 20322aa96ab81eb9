package main

import "github.com/quarrylabs/rollclient/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
