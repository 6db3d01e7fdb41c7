package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/enrollment/internal/config"
	"example.com/enrollment/internal/consumer"
	httptransport "example.com/enrollment/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(log.Writer(), "[consumer] ", log.LstdFlags)

	var handler consumer.Handler = consumer.LogHandler(logger)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		audit := consumer.NewAuditHandler(pool)
		if err := audit.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to prepare audit log: %v", err)
		}
		handler = audit
	}

	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httptransport.Serve(ctx, metricsSrv, 10*time.Second, logger); err != nil {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			MaxWait:         time.Second,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			logger.Printf("consumer started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("consumer stopped with error (topic=%s): %v", topic, err)
			}
		}(topic, reader)
	}

	<-ctx.Done()
	logger.Println("consumer shutdown requested")
	wg.Wait()
}
