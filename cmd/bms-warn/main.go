package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"bms-warn/internal/cache"
	"bms-warn/internal/config"
	"bms-warn/internal/consumer"
	"bms-warn/internal/ingest"
	"bms-warn/internal/models"
	"bms-warn/internal/notifier"
	"bms-warn/internal/processor"
	"bms-warn/internal/repository"
	"bms-warn/internal/rules"
	"bms-warn/internal/service"
	"bms-warn/internal/task"
	"bms-warn/internal/workerpool"
	"bms-warn/pkg/database"
	"bms-warn/pkg/logger"
	"bms-warn/pkg/mqtt"
	"bms-warn/pkg/redis"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "bms-warn")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting bms-warn service")

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient := redis.NewRedisClient(&cfg.Redis)
	defer redis.Close(redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redis.Ping(ctx, redisClient); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}

	mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("Failed to connect to mqtt broker", zap.Error(err))
	}
	defer mqttClient.Disconnect()

	// 仓库层
	signalRepo := repository.NewSignalRepository(db, log)
	vehicleRepo := repository.NewVehicleRepository(db, log)
	batteryTypeRepo := repository.NewBatteryTypeRepository(db, log)
	warnRuleRepo := repository.NewWarnRuleRepository(db, log)
	warnRepo := repository.NewWarnRepository(db, log)

	// 缓存层
	locks := cache.NewLockManager(redisClient, cfg.Cache.LockLease, log)
	signalByID := cache.NewAccessor[models.Signal](redisClient, locks,
		cfg.Cache.TTL, cfg.Cache.Jitter, cfg.Cache.LockWait, log)
	signalsByVid := cache.NewAccessor[[]models.Signal](redisClient, locks,
		cfg.Cache.TTL, cfg.Cache.Jitter, cfg.Cache.LockWait, log)
	ruleSnapshots := rules.NewRepository(redisClient, warnRuleRepo, cfg.Rule.KeyPrefix, log)

	// 服务层
	signalService := service.NewSignalService(signalRepo, signalByID, signalsByVid,
		locks, cfg.Cache.SignalKeyPrefix, cfg.Cache.LockWait, log)
	vehicleService := service.NewVehicleService(vehicleRepo, batteryTypeRepo, log)
	ruleService := service.NewRuleService(warnRuleRepo, ruleSnapshots, log)

	if err := ruleService.WarmSnapshots(ctx); err != nil {
		log.Warn("Failed to warm rule snapshots", zap.Error(err))
	}

	statusNotifier := notifier.NewStreamNotifier(redisClient, vehicleRepo, cfg.Stream.StatusTopic, log)

	pool := workerpool.New(cfg.Warn.Workers, cfg.Warn.QueueCapacity)
	defer pool.Shutdown()

	processors := []processor.Processor{
		processor.NewVoltageProcessor(ruleSnapshots, warnRepo, log),
		processor.NewCurrentProcessor(ruleSnapshots, warnRepo, log),
	}
	warnService := service.NewWarnService(processors, vehicleRepo, statusNotifier,
		pool, cfg.Warn.BatchSize, warnRepo, vehicleRepo, log)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "bms-warn"
	}

	var wg sync.WaitGroup

	// 信号批次消费者（告警判定侧）
	signalConsumer := consumer.NewStreamConsumer(redisClient, consumer.Config{
		Stream:        cfg.Stream.SignalTopic,
		Group:         cfg.Stream.SignalGroup,
		ConsumerName:  hostname + "-warn",
		ReadCount:     cfg.Stream.ReadCount,
		BlockTimeout:  cfg.Stream.BlockTimeout,
		ClaimInterval: cfg.Stream.ClaimInterval,
		ClaimMinIdle:  cfg.Stream.ClaimMinIdle,
		MaxDeliveries: cfg.Stream.MaxDeliveries,
	}, consumer.NewSignalBatchHandler(warnService, vehicleRepo, log), log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		signalConsumer.Start(ctx)
	}()

	// 回执消费者（信号侧，标记已下发）
	statusConsumer := consumer.NewStreamConsumer(redisClient, consumer.Config{
		Stream:        cfg.Stream.StatusTopic,
		Group:         cfg.Stream.StatusGroup,
		ConsumerName:  hostname + "-status",
		ReadCount:     cfg.Stream.ReadCount,
		BlockTimeout:  cfg.Stream.BlockTimeout,
		ClaimInterval: cfg.Stream.ClaimInterval,
		ClaimMinIdle:  cfg.Stream.ClaimMinIdle,
		MaxDeliveries: cfg.Stream.MaxDeliveries,
	}, consumer.NewStatusHandler(signalService, log), log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		statusConsumer.Start(ctx)
	}()

	// 信号批量下发任务
	provider := task.NewSignalProvider(signalService, redisClient,
		cfg.Stream.SignalTopic, cfg.Task.ProviderInterval, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		provider.Start(ctx)
	}()

	// MQTT遥测接入
	telemetry := ingest.NewMQTTIngest(mqttClient, cfg.MQTT.Topic, signalService, log)
	if err := telemetry.Start(ctx); err != nil {
		log.Fatal("Failed to start mqtt ingest", zap.Error(err))
	}
	defer telemetry.Stop()

	// 联调用的模拟遥测
	if cfg.Task.GeneratorEnabled {
		generator := task.NewSignalGenerator(vehicleService, signalService,
			cfg.Task.GeneratorInterval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			generator.Start(ctx)
		}()
	}

	log.Info("bms-warn service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Shutting down", zap.String("signal", sig.String()))

	cancel()
	wg.Wait()

	log.Info("bms-warn service stopped")
}
