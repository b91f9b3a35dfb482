package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/trading/application"
	"github.com/wyfcoding/exchange/internal/trading/domain"
	"github.com/wyfcoding/exchange/internal/trading/infrastructure/messaging"
	"github.com/wyfcoding/exchange/internal/trading/infrastructure/persistence"
	persistencemysql "github.com/wyfcoding/exchange/internal/trading/infrastructure/persistence/mysql"
	persistenceredis "github.com/wyfcoding/exchange/internal/trading/infrastructure/persistence/redis"
	"github.com/wyfcoding/exchange/internal/trading/infrastructure/rates"
	httpserver "github.com/wyfcoding/exchange/internal/trading/interfaces/http"
	"github.com/wyfcoding/exchange/pkg/config"
	"github.com/wyfcoding/exchange/pkg/db"
	"github.com/wyfcoding/exchange/pkg/logger"
	"github.com/wyfcoding/exchange/pkg/metrics"
	"github.com/wyfcoding/exchange/pkg/mq"
)

var configPath = flag.String("config", "configs/trader/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 日志
	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log := logger.Get()

	// 3. 指标
	m := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		go m.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. 基础设施
	database, err := db.Init(db.Config{
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(&domain.Order{}, &domain.Account{}, &domain.ExchangeRate{}); err != nil {
			log.Error("failed to migrate database", "error", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	// 5. 仓储
	orderRepo := persistencemysql.NewOrderRepository(database.DB)
	accountRepo := persistencemysql.NewAccountRepository(database.DB)
	rateRepo := persistence.NewCompositeRateRepository(
		persistencemysql.NewRateRepository(database.DB),
		persistenceredis.NewRateRedisRepository(redisClient),
	)
	txRunner := persistencemysql.NewTxRunner(database.DB)

	// 6. 事件发布
	var publisher domain.EventPublisher
	var producer *mq.KafkaProducer
	switch cfg.Trader.Publisher {
	case "kafka":
		producer = mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		defer producer.Close()
		publisher = messaging.NewKafkaPublisher(producer, cfg.Trader.FillTopic)
	default:
		publisher = messaging.NewRedisPublisher(redisClient, cfg.Trader.FillChannel)
	}

	// 7. 应用服务
	feeRate, err := decimal.NewFromString(cfg.Trader.FeeRate)
	if err != nil {
		log.Error("invalid fee rate", "fee_rate", cfg.Trader.FeeRate, "error", err)
		os.Exit(1)
	}

	settler := application.NewSettlementService(orderRepo, accountRepo, publisher, txRunner, feeRate, log, m)
	engine := application.NewEngine(rateRepo, orderRepo, settler, application.EngineConfig{
		SyncInterval:             time.Duration(cfg.Trader.SyncIntervalMS) * time.Millisecond,
		MaxConcurrentSettlements: cfg.Trader.MaxConcurrentSettlements,
	}, log, m)
	orderSvc := application.NewOrderService(orderRepo, accountRepo, log)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. 行情轮询（可选）
	if cfg.Trader.RatePollerEnabled {
		poller := rates.NewPoller(
			rateRepo,
			cfg.Trader.RatePollerURL,
			time.Duration(cfg.Trader.RatePollerIntervalMS)*time.Millisecond,
			log,
		)
		go poller.Run(rootCtx)
	}

	engine.Start(rootCtx)

	// 9. HTTP 接口
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	handler := httpserver.NewTraderHandler(engine, orderSvc, accountRepo, rateRepo)
	handler.RegisterRoutes(r.Group("/api"))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("http server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			cancel()
		}
	}()

	// 10. 优雅退出：停止调度，等进行中的一轮收敛
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-rootCtx.Done():
	}

	log.Info("shutting down")
	engine.Stop()
	engine.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("trader stopped")
}
