package main

import (
	"os"

	"github.com/tariffwise/tariffwise/cmd/tariffwise/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
