// Command vidnotesd runs the vidnotes daemon with the default configuration.
package main

import (
	"context"
	"flag"
	"log"

	"vidnotes/internal/config"
	"vidnotes/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override logging.level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("vidnotesd: %v", err)
	}
}
