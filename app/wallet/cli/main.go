package main

import "github.com/ardanlabs/blockforest/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
