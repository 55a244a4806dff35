package main

import (
	"os"

	"github.com/charliek/minerd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
