package main

import (
	"os"

	"github.com/vppebpf/cerberus/cmd/cerberus/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
