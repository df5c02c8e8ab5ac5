package main

import (
	"os"

	"arena-api/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
