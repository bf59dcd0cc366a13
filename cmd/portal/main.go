package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lexportal/claimshield/pkg/cache"
	"github.com/lexportal/claimshield/pkg/config"
	domainrl "github.com/lexportal/claimshield/pkg/domain/ratelimit"
	"github.com/lexportal/claimshield/pkg/infra/database"
	infraLogger "github.com/lexportal/claimshield/pkg/infra/logger"
	"github.com/lexportal/claimshield/pkg/infra/repository"
	"github.com/lexportal/claimshield/pkg/middleware"
	"github.com/lexportal/claimshield/pkg/ratelimit"
	"github.com/lexportal/claimshield/pkg/sanitize"
	"github.com/lexportal/claimshield/pkg/server"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger()

	if err := config.Load("./config"); err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	db, err := database.NewDB(logger, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	policyTable := ratelimit.NewPolicyTable(cfg.Defense.PolicyOverrides())

	var rateStore domainrl.Repository
	switch cfg.Defense.Store {
	case "redis":
		redisCache, err := cache.NewCache(cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatalf("failed to initialize redis: %v", err)
		}
		defer redisCache.Close()
		rateStore = repository.NewRedisRateRecordRepository(redisCache.Client(), nil)
	default:
		rateStore = repository.NewRateRecordRepository(db.DB)
	}

	limiter := ratelimit.NewLimiter(rateStore, logger, &ratelimit.Opts{
		MaxWindow: policyTable.MaxWindow(),
	})

	sanitizer := sanitize.NewSanitizer(logger)
	formSanitizer := sanitize.NewFormSanitizer(sanitizer)
	eventRepository := repository.NewSecurityEventRepository(db.DB)
	extractor := middleware.NewClientIPExtractor(cfg.Defense.TrustedIPHeaders)

	fieldPolicies := map[string]sanitize.Config{
		"email":       sanitize.Email(),
		"name":        sanitize.PersonName(),
		"first_name":  sanitize.PersonName(),
		"last_name":   sanitize.PersonName(),
		"phone":       sanitize.Phone(),
		"address":     sanitize.Address(),
		"city":        sanitize.Address(),
		"website":     sanitize.URL(),
		"description": sanitize.RichText(),
		"body":        sanitize.RichText(),
	}

	defense := middleware.NewDefenseMiddleware(
		limiter,
		formSanitizer,
		eventRepository,
		policyTable,
		extractor,
		fieldPolicies,
		logger,
	)

	srv := server.NewServer(cfg, logger, defense)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
