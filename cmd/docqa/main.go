package main

import (
	"os"

	"github.com/joho/godotenv"

	"docqa/internal/cli"
)

func main() {
	// API keys may live in a local .env file.
	_ = godotenv.Load()

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
