package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classpix/classpix/internal/approval"
	"github.com/classpix/classpix/internal/config"
	"github.com/classpix/classpix/internal/db"
	"github.com/classpix/classpix/internal/genimage"
	"github.com/classpix/classpix/internal/httpapi"
	"github.com/classpix/classpix/internal/notify"
	"github.com/classpix/classpix/internal/ratelimit"
)

// safetyAdapter bridges the genimage classifier onto the approval domain's
// safety vocabulary (the string values are identical).
type safetyAdapter struct {
	c genimage.Classifier
}

func (a safetyAdapter) Classify(ctx context.Context, imageURL string) approval.SafetyLevel {
	return approval.SafetyLevel(a.c.Classify(ctx, imageURL))
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := approval.NewRepo(gdb)

	rds := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pacer := ratelimit.NewPacer(rds, "genimage:lastcall", cfg.RateLimitPerMinute, time.Hour)

	provider := genimage.NewOpenAIProvider(
		cfg.ImageAPIBaseURL, cfg.ImageAPIKey, cfg.ImageModel, cfg.ImageSize, cfg.ImageTimeout,
	)
	queue := genimage.NewQueue(provider, pacer, genimage.Options{
		MaxConcurrent: cfg.MaxConcurrentJobs,
		MaxAttempts:   cfg.MaxAttempts,
		FallbackDelay: cfg.FallbackDelay,
	})

	publisher, err := notify.NewAMQPPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer publisher.Close()

	svc := approval.NewService(repo, queue, safetyAdapter{c: &genimage.WeightedClassifier{}}, publisher)
	batch := approval.NewBatchRunner(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(gdb, cfg, svc, batch),
	}

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
