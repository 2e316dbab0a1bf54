package main

import (
	"os"

	"github.com/opd-ai/onionrelay/cmd/onionctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
