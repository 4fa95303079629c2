package main

import (
	"github.com/drivesink/drivesink/internal/cli"
)

func main() {
	_ = cli.Execute()
}
