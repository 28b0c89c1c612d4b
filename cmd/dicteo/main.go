package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dicteo/dicteo/internal/cli"
)

func main() {
	// A .env next to the binary is the easiest way to carry the provider
	// key during development; absence is not an error.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
