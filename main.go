package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ardnew/talc/cli"
	"github.com/ardnew/talc/log"
)

func main() {
	err := cli.Run(context.Background(), os.Exit, os.Args[1:]...)
	if err != nil {
		// Template errors get a source diagnostic instead of a log record.
		if !cli.Diagnose(os.Stderr, err) {
			log.Error(
				"run failed",
				slog.Any("error", err),
			) // slog automatically uses LogValue()
		}

		os.Exit(1)
	}
}
