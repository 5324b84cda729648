// Command server runs the claims-intake HTTP API: claim management, document
// uploads, and the inbound email webhook.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voyagecover/claims-intake/internal/api"
	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/config"
	"github.com/voyagecover/claims-intake/internal/docs"
	"github.com/voyagecover/claims-intake/internal/intake"
	"github.com/voyagecover/claims-intake/internal/llm"
	"github.com/voyagecover/claims-intake/internal/mail"
	"github.com/voyagecover/claims-intake/internal/notify"
	"github.com/voyagecover/claims-intake/internal/ocr"
	"github.com/voyagecover/claims-intake/internal/repository/postgres"
	"github.com/voyagecover/claims-intake/internal/storage"
)

func main() {
	log.Println("Starting claims-intake server...")

	cfg, err := config.LoadFromEnv("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
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

	llmClient, err := llm.NewBedrockClient(ctx, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey, cfg.Bedrock.ModelID)
	if err != nil {
		log.Fatalf("Failed to create Bedrock client: %v", err)
	}

	blobs, err := storage.NewS3Store(ctx, cfg.Storage.S3Bucket, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
	if err != nil {
		log.Fatalf("Failed to create S3 store: %v", err)
	}

	// Gmail is optional on the server; without it webhook attachments
	// referencing provider messages cannot be fetched.
	var mailbox mail.Mailbox
	if cfg.Gmail.CredentialsFile != "" {
		mailbox, err = mail.NewGmailClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
		if err != nil {
			log.Fatalf("Failed to create Gmail client: %v", err)
		}
	}

	docSvc := docs.NewService(documentRepo, blobs, mailbox)

	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier, err = notify.New(ctx, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey,
			cfg.Notify.FromEmail, cfg.Notify.FromName)
		if err != nil {
			log.Fatalf("Failed to create notifier: %v", err)
		}
		log.Println("Customer notifications enabled")
	}

	correlator := intake.NewCorrelator(messageRepo, llmClient, cfg.Bedrock.Timeout())
	extractor := intake.NewExtractor(llmClient, cfg.Bedrock.Timeout())

	var pipelineNotifier intake.Notifier
	if notifier != nil {
		pipelineNotifier = notifier
	}
	pipeline := intake.NewPipeline(messageRepo, correlator, extractor, claimSvc, docSvc, pipelineNotifier)

	ocrWorker := ocr.NewWorker(documentRepo, blobs, llmClient, cfg.Polling.BatchSize(), cfg.Bedrock.Timeout())

	var statusNotifier api.StatusNotifier
	if notifier != nil {
		statusNotifier = notifier
	}
	handlers := api.NewHandlers(claimSvc, docSvc, ocrWorker, pipeline, statusNotifier, db, cfg.Webhook.Secret)
	server := api.NewServer(handlers)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil {
			log.Printf("HTTP server stopped: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
