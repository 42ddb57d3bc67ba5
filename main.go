package main

import (
	"os"

	"github.com/narradar/narradar/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
