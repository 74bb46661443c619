package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/pw-Chen-km/Twin3-algo/internal/cli"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
