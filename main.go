package main

import (
	"os"

	"github.com/nodetick/mail-gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
