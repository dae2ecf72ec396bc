package main

import (
	"os"

	"github.com/clypper/roles-rules/cmd/rolerules/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
