package main

import (
	"os"

	"github.com/kpai47/katha/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
