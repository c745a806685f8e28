package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"absensi/internal/config"
	"absensi/internal/notify"
	"absensi/internal/queue"
	"absensi/internal/store"
)

// Worker consumes queued attendance events and delivers the WhatsApp and
// spreadsheet notifications. Run it alongside the API when QUEUE_BACKEND=redis.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	if !redisClient.Healthy(ctx) {
		log.Fatalf("redis not reachable at %s", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "absensi:notify")

	var wa *notify.WhatsAppClient
	if cfg.WAToken != "" && cfg.WARecipient != "" {
		wa = notify.NewWhatsApp(cfg.WAEndpoint, cfg.WAToken, cfg.WARecipient)
		log.Println("WhatsApp gateway configured")
	} else {
		log.Println("WARNING: WA_TOKEN / WA_RECIPIENT not set, WhatsApp notifications disabled")
	}

	var sheet *notify.SheetClient
	if cfg.SheetWebhookURL != "" {
		sheet = notify.NewSheet(cfg.SheetWebhookURL)
		log.Println("Sheet webhook configured")
	} else {
		log.Println("WARNING: SHEET_WEBHOOK_URL not set, sheet notifications disabled")
	}

	log.Println("worker started, waiting for messages...")
	d := notify.NewDispatcher(wa, sheet)
	if err := d.Run(ctx, q); err != nil {
		log.Fatalf("dispatcher failed: %v", err)
	}
	log.Println("worker stopped")
}
