package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/tiendafacil/pedidos-api/internal/config"
	"github.com/tiendafacil/pedidos-api/internal/handler"
	"github.com/tiendafacil/pedidos-api/internal/middleware"
	"github.com/tiendafacil/pedidos-api/internal/repository"
	"github.com/tiendafacil/pedidos-api/internal/service"
	"github.com/tiendafacil/pedidos-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	userSvc := service.NewUserService(userRepo)
	productSvc := service.NewProductService(productRepo, redisClient)
	orderSvc := service.NewOrderService(orderRepo, productRepo, amqpCh)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	profileH := handler.NewProfileHandler(userSvc)
	productH := handler.NewProductHandler(productSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	notificationH := handler.NewNotificationHandler(redisClient)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	notifier := worker.NewNotifier(amqpCh, redisClient, log)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		profile := v1.Group("/profile", middleware.AuthMiddleware(cfg.JWT.Secret))
		profile.GET("", profileH.Get)
		profile.PUT("", profileH.Update)

		v1.GET("/notifications", middleware.AuthMiddleware(cfg.JWT.Secret), notificationH.List)

		products := v1.Group("/products", middleware.AuthMiddleware(cfg.JWT.Secret))
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)

		empresa := products.Group("", middleware.EmpresaOnly())
		empresa.POST("", productH.Create)
		empresa.PUT("/:id", productH.Update)
		empresa.DELETE("/:id", productH.Delete)

		orders := v1.Group("/orders", middleware.AuthMiddleware(cfg.JWT.Secret))
		orders.POST("", middleware.ClienteOnly(), orderH.Create)
		orders.GET("/mine", middleware.ClienteOnly(), orderH.ListMine)
		orders.PUT("/:id/cancel", middleware.ClienteOnly(), orderH.Cancel)
		orders.GET("", middleware.EmpresaOnly(), orderH.ListAll)
		orders.PUT("/:id", middleware.EmpresaOnly(), orderH.UpdateStatus)
	}

	if err := notifier.Start(ctx); err != nil {
		log.Error("start notifier", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	notifier.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
