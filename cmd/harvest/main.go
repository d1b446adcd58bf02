// Command harvest runs a configured simulation as fast as possible and writes
// the harvester traces to disk.
package main

import (
	"fmt"
	"os"

	"github.com/levenlabs/go-lflag"
	"go.uber.org/zap"

	"sun_harvester/internal/config"
	"sun_harvester/internal/logging"
)

func main() {
	configPath := lflag.String("config", "", "path to the YAML simulation config; built-in defaults when empty")
	outDir := lflag.String("out", "traces", "directory the trace files are written to")
	format := lflag.String("format", "csv", "trace format: csv, ascii or both")
	sqlitePath := lflag.String("sqlite", "", "also archive every reading into this SQLite file")
	dev := lflag.Bool("dev", false, "human readable console logging")

	lflag.Configure()

	logger, err := logging.Configured(*dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath, logger)
		if err != nil {
			logger.Fatal("loading config", zap.Error(err))
		}
	}

	f, err := parseFormat(*format)
	if err != nil {
		logger.Fatal("invalid flag", zap.Error(err))
	}

	if err := run(cfg, *outDir, f, *sqlitePath, logger); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}
