package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	apihttp "meter-insights/internal/api/http"
	"meter-insights/internal/config"
	"meter-insights/internal/eventing"
	eventrepo "meter-insights/internal/events/infrastructure/postgres"
	"meter-insights/internal/messaging"
	"meter-insights/internal/notify"
	"meter-insights/internal/observability/metrics"
	incidentrepo "meter-insights/internal/outage/infrastructure/postgres"
	"meter-insights/internal/pipeline"
	telemetryhttp "meter-insights/internal/telemetry/interfaces/http"
	orderrepo "meter-insights/internal/workorders/infrastructure/postgres"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set, running without persistence")
	}
	metrics.Init(db, logger)
	if db != nil && cfg.IDNamespace == "" {
		cfg.IDNamespace = time.Now().UTC().Format("20060102T150405")
		logger.Printf("generated id namespace %s", cfg.IDNamespace)
	}

	bus := eventing.NewInMemoryBus()
	p, err := pipeline.New(cfg, pipeline.WithBus(bus), pipeline.WithLogger(logger))
	if err != nil {
		logger.Fatalf("pipeline error: %v", err)
	}

	if db != nil {
		sink, err := buildSink(ctx, db)
		if err != nil {
			logger.Fatalf("postgres sink error: %v", err)
		}
		sink.Subscribe(bus)
	}

	var sendLog notify.SendLog
	if cfg.Notify.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Notify.RedisURL)
		if err != nil {
			logger.Fatalf("redis url error: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatalf("redis ping error: %v", err)
		}
		if sendLog, err = notify.NewRedisSendLog(client, ""); err != nil {
			logger.Fatalf("redis send log error: %v", err)
		}
	}
	notifier, err := buildNotifier(cfg, p, sendLog, logger)
	if err != nil {
		logger.Fatalf("notifier error: %v", err)
	}
	defer notifier.Close()
	notifier.Subscribe(bus)

	broker := apihttp.NewSSEBroker()
	broker.Attach(bus)

	readings := messaging.NewReadingSource(256, logger)
	var conn *nats.Conn
	if cfg.NATS.URL != "" {
		conn, err = messaging.Connect(messaging.Config{URL: cfg.NATS.URL}, logger)
		if err != nil {
			logger.Fatalf("nats error: %v", err)
		}
		defer conn.Close()
		publisher, err := messaging.NewPublisher(conn, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Fatalf("nats publisher error: %v", err)
		}
		publisher.Subscribe(bus)
		if err := readings.Listen(ctx, conn, cfg.NATS.SubjectPrefix+".readings"); err != nil {
			logger.Fatalf("nats readings subscribe error: %v", err)
		}
		logger.Printf("nats connected, listening on %s.readings", cfg.NATS.SubjectPrefix)
	}

	ingestHandler, err := telemetryhttp.NewIngestHandler(p, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	apiHandlers, err := apihttp.NewHandlers(p, logger)
	if err != nil {
		logger.Fatalf("api handlers error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", ingestHandler)
	apiHandlers.Register(mux)
	mux.Handle("/api/v1/stream", apihttp.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancelRun()
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		if err := p.Run(gctx, readings.Readings(), ticker.C); err != nil && !errors.Is(err, pipeline.ErrClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("service stopped: %v", err)
	}
	stop()

	if err := readings.Close(); err != nil {
		logger.Printf("nats readings drain error: %v", err)
	}
	if conn != nil {
		if err := conn.Drain(); err != nil {
			logger.Printf("nats drain error: %v", err)
		}
	}
	logger.Printf("shutdown complete")
}

func buildSink(ctx context.Context, db *sql.DB) (*pipeline.Sink, error) {
	events := eventrepo.NewEventRepository(db)
	incidents := incidentrepo.NewIncidentRepository(db)
	orders := orderrepo.NewWorkOrderRepository(db)
	for _, migrate := range []func(context.Context) error{events.Migrate, incidents.Migrate, orders.Migrate} {
		if err := migrate(ctx); err != nil {
			return nil, err
		}
	}
	return pipeline.NewSink(events, incidents, orders)
}

func buildNotifier(cfg config.Config, p *pipeline.Pipeline, sendLog notify.SendLog, logger *log.Logger) (*notify.Notifier, error) {
	var channel notify.Channel = notify.NewLogChannel(logger)
	if cfg.Notify.WebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.Notify.WebhookURL)
		if err != nil {
			return nil, err
		}
		channel = notify.NewMultiChannel(webhook, channel)
	}
	tpl, err := notify.NewTemplate(os.Getenv("ALERT_NOTIFY_TEMPLATE"))
	if err != nil {
		return nil, err
	}
	return notify.NewNotifier(channel, tpl,
		notify.WithMinSeverity(cfg.Notify.MinSeverity),
		notify.WithCooldown(cfg.Notify.Cooldown),
		notify.WithDedupeWindow(cfg.Notify.Dedupe),
		notify.WithEscalation(cfg.Notify.Escalation, p),
		notify.WithSendLog(sendLog),
		notify.WithLogger(logger),
	)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working behind the logging middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
