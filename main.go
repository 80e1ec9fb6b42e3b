package main

import (
	"os"

	"github.com/fractyl/fractyl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
