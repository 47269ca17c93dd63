package main

import (
	"os"

	"github.com/iliyamo/cinema-seat-booking/internal/cli"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
)

func main() {
	err := cli.NewRootCommand().Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
