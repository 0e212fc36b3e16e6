package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"drainage/analyzer"
	"drainage/config"
	"drainage/report"
	"drainage/storage"
)

func main() {
	tablePath := flag.String("path", "", "Table path (s3://bucket/prefix)")
	format := flag.String("format", "auto", "Table format: auto, delta or iceberg")
	region := flag.String("region", "", "AWS region override")
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *tablePath == "" {
		log.Fatalf("missing required -path flag")
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *region != "" {
		cfg.Storage.Region = *region
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	store, err := storage.NewS3(ctx, *tablePath, cfg.Storage.Region, storage.Credentials{
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to open table storage: %v", err)
	}

	a := analyzer.New(storage.NewCache(store), *tablePath, cfg.Rules)

	var rep report.HealthReport
	switch *format {
	case "auto":
		rep, err = a.Analyze(ctx)
	case "delta":
		rep, err = a.AnalyzeDeltaLake(ctx)
	case "iceberg":
		rep, err = a.AnalyzeIceberg(ctx)
	default:
		log.Fatalf("unknown format %q", *format)
	}
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))
}
