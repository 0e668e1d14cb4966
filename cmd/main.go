package main

import (
	"os"

	"github.com/nthbao13/cloud-quiz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
