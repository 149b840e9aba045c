package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkozyrev/codeshop/internal/api"
	"github.com/dkozyrev/codeshop/internal/config"
	"github.com/dkozyrev/codeshop/internal/handler"
	"github.com/dkozyrev/codeshop/internal/infrastructure/kafka"
	"github.com/dkozyrev/codeshop/internal/infrastructure/redis"
	"github.com/dkozyrev/codeshop/internal/observability"
	core "github.com/dkozyrev/codeshop/internal/repository/postgres"
	"github.com/dkozyrev/codeshop/internal/security"
	service "github.com/dkozyrev/codeshop/internal/services"
	_ "github.com/lib/pq"
)

func main() {
	// Логи, метрики, трейсы
	shutdown, _ := observability.Setup("codeshop")
	defer shutdown(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаемся к Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	cipher, err := security.NewCodeCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to init code cipher: %v", err)
	}

	// Инициализируем зависимости
	profileRepo := core.NewPostgresProfileRepository(db)
	productRepo := core.NewPostgresProductRepository(db)
	codeRepo := core.NewPostgresCodeRepository(db)
	orderRepo := core.NewPostgresOrderRepository(db)
	creditRepo := core.NewPostgresCreditRequestRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	storeSvc := service.NewStoreService(profileRepo, productRepo, orderRepo, creditRepo, redisClient, producer, cipher, cfg.JWTSecret)
	adminSvc := service.NewAdminService(productRepo, codeRepo, creditRepo, profileRepo, redisClient, producer, cipher)

	// Консьюмеры проекций: метрики и инвалидация кэшей
	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	orderConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "orders", "codeshop-orders", redisClient)
	creditConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "credits", "codeshop-credits", redisClient)
	go orderConsumer.Consume(consumerCtx)
	go creditConsumer.Consume(consumerCtx)
	defer orderConsumer.Close()
	defer creditConsumer.Close()
	defer cancelConsumers()

	h := handler.NewHandler(storeSvc, adminSvc)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
