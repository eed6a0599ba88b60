package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"registration-verifier/internal/api"
	"registration-verifier/internal/config"
	"registration-verifier/internal/erp"
	"registration-verifier/internal/notify"
	"registration-verifier/internal/ratelimit"
	"registration-verifier/internal/schedule"
	"registration-verifier/internal/store"
	"registration-verifier/internal/verify"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	scheduler, err := schedule.New(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	var erpClient erp.Client
	if cfg.ERPBaseURL == "" {
		log.Printf("erp: no ERP_BASE_URL, using in-process mock directory")
		erpClient = &erp.MockClient{Latency: 50 * time.Millisecond, Records: erp.SampleDirectory()}
	} else {
		erpClient = erp.NewHTTPClient(cfg.ERPBaseURL, cfg.ERPRequestTimeout)
	}

	cache := erp.NewCache(erpClient)

	var limiter erp.LookupLimiter
	if !cfg.CacheOnlyMode {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		bucketKey := cfg.ERPBaseURL
		if bucketKey == "" {
			bucketKey = "mock"
		}
		limiter = ratelimit.NewLookupBucket(redisClient, bucketKey, cfg.ERPLookupCapacity, cfg.ERPLookupRefill)
	}
	facade := erp.NewFacade(cache, erpClient, cfg.CacheOnlyMode, limiter)

	var sender notify.Sender = notify.LogSender{}
	if cfg.SMTPAddr != "" {
		sender = notify.NewSMTPSender(cfg.SMTPAddr, cfg.EmailFrom, cfg.VerifyURL)
	}

	validator := verify.NewValidator(facade)
	policy := verify.Policy{MaxRetryAttempts: cfg.MaxRetryAttempts, RetryDelay: cfg.RetryDelay}
	runner := verify.NewRunner(st, validator, sender, policy, cfg.BatchSize, cfg.BatchConcurrency)

	if cfg.CacheEnabled {
		go func() {
			if err := cache.Run(ctx, cfg.CacheRefreshInterval); err != nil && ctx.Err() == nil {
				log.Printf("cache refresh loop stopped: %v", err)
			}
		}()
	}
	go func() {
		if err := runner.Run(ctx, scheduler); err != nil && ctx.Err() == nil {
			log.Printf("batch loop stopped: %v", err)
		}
	}()

	server := api.New(st, cache, runner)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("verifier listening on :%s (batch=%d retries=%d refresh=%s)",
		cfg.HTTPPort, cfg.BatchSize, cfg.MaxRetryAttempts, cfg.CacheRefreshInterval)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
