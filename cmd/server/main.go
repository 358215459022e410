package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory-sync/config"
	"inventory-sync/internal/api"
	"inventory-sync/internal/broker"
	"inventory-sync/internal/redisclient"
	"inventory-sync/internal/service"
	"inventory-sync/internal/store"
	"inventory-sync/internal/util"
	"inventory-sync/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting inventory sync engine")

	tp, err := util.InitTracer("inventory-sync", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	locks := service.NewSKULocker()
	pusher := service.NewSimulatedPusher(cfg.Sync.PushSuccessRate)

	mappingService := service.NewMappingService(db)
	ledger := service.NewLedger(db, db, redisClient, eventPublisher, locks)
	distributor := service.NewDistributor(db, db, eventPublisher, locks, pusher.Push)
	statsService := service.NewStatsService(db)
	ingressService := service.NewIngressService(db, ledger)

	go func() {
		if err := ledger.WarmSnapshots(context.Background()); err != nil {
			log.Printf("Snapshot warm-up failed: %v", err)
		}
	}()

	reconciler := worker.NewReconciler(db, db, distributor, redisClient, eventPublisher)

	// resume the daemon if it was running before the last shutdown
	if daemonCfg, err := reconciler.GetConfig(ctx); err != nil {
		log.Printf("Failed to load sync config: %v", err)
	} else if daemonCfg.Enabled {
		if err := reconciler.Start(ctx, nil); err != nil {
			log.Printf("Failed to resume sync daemon: %v", err)
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	ingressConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicIngress, cfg.Kafka.ConsumerGroup)
	ingressWorker := worker.NewIngressWorker(ingressConsumer, ingressService)
	go func() {
		if err := ingressWorker.Start(workerCtx); err != nil {
			log.Printf("Ingress worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(mappingService, ledger, distributor, statsService, reconciler)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// keep the enabled flag so the next boot resumes the loop
	if reconciler.IsRunning() {
		reconciler.Halt()
	}

	workerCancel()
	ingressWorker.Stop()

	log.Println("Server exited")
}
