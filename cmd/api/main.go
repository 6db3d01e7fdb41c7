package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"example.com/enrollment/internal/api"
	"example.com/enrollment/internal/auth"
	"example.com/enrollment/internal/catalog"
	"example.com/enrollment/internal/config"
	"example.com/enrollment/internal/domain"
	"example.com/enrollment/internal/outbox"
	"example.com/enrollment/internal/ratelimit"
	httptransport "example.com/enrollment/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, err := loadSeed(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	var storeOpts []domain.StoreOption
	if cfg.EnforceCapacity {
		storeOpts = append(storeOpts, domain.WithCapacityEnforcement())
	}
	store := domain.NewEnrollmentStore(seed, storeOpts...)

	var (
		publisher  domain.EventPublisher
		dispatcher *outbox.Dispatcher
	)
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	if cfg.EventsEnabled {
		queue := outbox.NewQueue(cfg.KafkaTopic, cfg.OutboxBufferSize)
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewRegistrar(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(queue, producer, registry, cfg.OutboxFlushInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(dispatchCtx)
		publisher = queue
		log.Printf("publishing enrollment events to %s via %v", cfg.KafkaTopic, cfg.KafkaBrokers)
	}

	service := domain.NewService(store, publisher)

	var handlerOpts []api.Option
	if cfg.AuthEnabled {
		handlerOpts = append(handlerOpts, api.WithAuth(auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)))
		log.Printf("enrollment changes require %s tokens from %s", auth.ScopeEnrollmentsWrite, cfg.JWTIssuer)
	}
	handler := api.NewHandler(service, handlerOpts...)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx, time.Minute)

	trusted, err := ratelimit.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("invalid TRUSTED_PROXIES: %v", err)
	}
	limitOpts := ratelimit.Options{Limiter: limiter, Skipper: ratelimit.SafeMethods, TrustedProxies: trusted}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		limitOpts.Recorder = ratelimit.NewRedisRecorder(rdb, "", 24*time.Hour)
	}

	root := httptransport.Chain(mux,
		api.LogRequests(log.New(log.Writer(), "[http] ", log.LstdFlags)),
		ratelimit.Middleware(limitOpts),
	)

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, root)

	if err := httptransport.Serve(ctx, server, serverCfg.ShutdownTimeout, log.Default()); err != nil {
		log.Printf("server error: %v", err)
	}

	if dispatcher != nil {
		cancelDispatch()
		dispatcher.Wait()
	}
	log.Println("enrollment-service stopped")
}

func loadSeed(path string) ([]domain.Activity, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}
