package main

import (
	"os"

	"github.com/kapu/rtdb-janitor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
