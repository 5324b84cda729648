// Command worker runs the background loops: the mailbox poller feeding the
// intake pipeline and the OCR poller draining pending documents.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/config"
	"github.com/voyagecover/claims-intake/internal/docs"
	"github.com/voyagecover/claims-intake/internal/intake"
	"github.com/voyagecover/claims-intake/internal/llm"
	"github.com/voyagecover/claims-intake/internal/mail"
	"github.com/voyagecover/claims-intake/internal/notify"
	"github.com/voyagecover/claims-intake/internal/ocr"
	"github.com/voyagecover/claims-intake/internal/pkg/distlock"
	"github.com/voyagecover/claims-intake/internal/repository/postgres"
	"github.com/voyagecover/claims-intake/internal/storage"
	"github.com/voyagecover/claims-intake/internal/worker"
)

func main() {
	log.Println("Starting claims-intake worker...")

	cfg, err := config.LoadFromEnv("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.Gmail.CredentialsFile == "" {
		log.Fatal("GMAIL_CREDENTIALS_FILE is required for the mail poller")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	claimRepo := postgres.NewClaimRepo(db)
	messageRepo := postgres.NewMessageRepo(db)
	documentRepo := postgres.NewDocumentRepo(db)

	claimSvc := claims.NewService(claimRepo, claims.NewNumberGenerator(cfg.Claims.Prefix()))

	mailbox, err := mail.NewGmailClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
	if err != nil {
		log.Fatalf("Failed to create Gmail client: %v", err)
	}

	llmClient, err := llm.NewBedrockClient(ctx, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey, cfg.Bedrock.ModelID)
	if err != nil {
		log.Fatalf("Failed to create Bedrock client: %v", err)
	}

	blobs, err := storage.NewS3Store(ctx, cfg.Storage.S3Bucket, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
	if err != nil {
		log.Fatalf("Failed to create S3 store: %v", err)
	}

	docSvc := docs.NewService(documentRepo, blobs, mailbox)

	var notifier intake.Notifier
	if cfg.Notify.Enabled {
		n, err := notify.New(ctx, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey,
			cfg.Notify.FromEmail, cfg.Notify.FromName)
		if err != nil {
			log.Fatalf("Failed to create notifier: %v", err)
		}
		notifier = n
		log.Println("Customer notifications enabled")
	}

	correlator := intake.NewCorrelator(messageRepo, llmClient, cfg.Bedrock.Timeout())
	extractor := intake.NewExtractor(llmClient, cfg.Bedrock.Timeout())
	pipeline := intake.NewPipeline(messageRepo, correlator, extractor, claimSvc, docSvc, notifier)

	// Redis is a fast-path duplicate filter; the worker runs without it.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unreachable, falling back to Postgres-only coordination: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	seen := worker.NewSeenCache(redisClient)

	// One instance drains the inbox at a time; scaled-out workers contend
	// on the lock instead of double-processing.
	pollLock := distlock.NewLock(redisClient, db, "mail-poller", 2*cfg.Polling.Interval())

	mailPoller := worker.NewMailPoller(mailbox, pipeline, messageRepo, seen, pollLock,
		cfg.Polling.Interval(), int(cfg.Gmail.MaxResults))

	ocrWorker := ocr.NewWorker(documentRepo, blobs, llmClient, cfg.Polling.BatchSize(), cfg.Bedrock.Timeout())
	ocrPoller := worker.NewOCRPoller(ocrWorker, cfg.Polling.Interval())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); mailPoller.Start(ctx) }()
	go func() { defer wg.Done(); ocrPoller.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down", sig)

	cancel()
	wg.Wait()
	log.Println("Worker stopped")
}
