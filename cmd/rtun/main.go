package main

import (
	"os"

	"github.com/alicommit-malp/rtun/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
