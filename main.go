package main

import (
	"os"

	"github.com/pfe-helper/pfe-aggregator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
