// Command worker runs the C8 task processor control loop alongside the
// terminal-event notification consumer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aetheric-oss/svc-scheduler/config"
	"github.com/aetheric-oss/svc-scheduler/internal/bootstrap"
	"github.com/aetheric-oss/svc-scheduler/internal/logging"
	"github.com/aetheric-oss/svc-scheduler/internal/metrics"
	"github.com/aetheric-oss/svc-scheduler/internal/notify"
	"github.com/aetheric-oss/svc-scheduler/internal/processor"
	"github.com/aetheric-oss/svc-scheduler/internal/queue"
	"github.com/aetheric-oss/svc-scheduler/internal/routing"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
	"github.com/aetheric-oss/svc-scheduler/internal/storage"
	"github.com/aetheric-oss/svc-scheduler/internal/taskstore"
	"github.com/aetheric-oss/svc-scheduler/internal/timeline"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Scheduler.Environment)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Sugar().Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	store := &storage.Store{
		Pads:        storage.NewPGPadRepository(pool),
		Aircraft:    storage.NewPGAircraftRepository(pool),
		FlightPlans: storage.NewPGFlightPlanRepository(pool),
		Itineraries: storage.NewPGItineraryRepository(pool),
	}

	routingClient := routing.NewHTTPClient(cfg.GIS.BaseURL, cfg.GIS.Timeout)
	tb := timeline.NewBuilder(store, cfg.Scheduler.MinPadBlock, cfg.Scheduler.MaxPairingWindow)
	engine := search.NewEngine(store, tb, routingClient, search.Config{
		MaxDeadhead:       cfg.Scheduler.MaxDeadhead,
		RevalidationSlack: cfg.Scheduler.RevalidationSlack,
	})

	queues := queue.NewQueues(redisClient)
	tasks := taskstore.NewStore(redisClient)
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	producer := notify.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, logger)
	defer producer.Close()

	proc := processor.New(queues, tasks, engine, store,
		processor.WithLogger(logger),
		processor.WithMetrics(recorder),
		processor.WithNotifier(producer),
		processor.WithPopTimeout(cfg.Scheduler.TaskPopTimeout),
	)

	var consumer *notify.Consumer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.NotifyTopic != "" {
		consumer = notify.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, cfg.Kafka.NotifyGroup, logger)
		defer consumer.Close()
	}

	w := &bootstrap.Worker{Processor: proc, Consumer: consumer, Log: logger}
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Sugar().Fatalf("worker error: %v", err)
	}
}
