package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ticklake/internal/config"
	"ticklake/internal/news"
	"ticklake/internal/notify"
	"ticklake/internal/util"
	"ticklake/internal/warehouse"
)

func main() {
	inputDir := flag.String("dir", "", "directory of news files (default news.input_dir)")
	flag.Parse()

	cfgPath := "config/ticklake.yaml"
	if p := os.Getenv("TICKLAKE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File))

	dir := cfg.News.InputDir
	if *inputDir != "" {
		dir = *inputDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wh, err := warehouse.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("opening warehouse: %v", err)
	}
	defer wh.Close()

	ledger, err := news.OpenLedger(cfg.News.LedgerPath)
	if err != nil {
		log.Fatalf("opening ledger: %v", err)
	}
	defer ledger.Close()

	notifier, err := notify.Open(ctx, cfg.Notify)
	if err != nil {
		log.Fatalf("opening notifier: %v", err)
	}
	defer notifier.Close()

	ingester := news.NewIngester(wh, ledger, notifier, cfg.News.Table, dir)
	slog.Info("starting news ingest", "dir", dir, "table", cfg.News.Table, "ledger", cfg.News.LedgerPath)
	if err := ingester.Run(ctx); err != nil {
		log.Fatalf("news ingest error: %v", err)
	}
}
