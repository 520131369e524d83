// svgtranslate-api — HTTP API сервиса перевода SVG-файлов.
//
// Поднимает два пула соединений с БД (интерактивный и фоновый),
// конвейер задач, опциональную шину RabbitMQ и HTTP-сервер
// с graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mdwiki-TD/svg-translate-web/internal/api"
	"github.com/Mdwiki-TD/svg-translate-web/internal/batch"
	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
	"github.com/Mdwiki-TD/svg-translate-web/internal/maintenance"
	"github.com/Mdwiki-TD/svg-translate-web/internal/mq"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
	"github.com/Mdwiki-TD/svg-translate-web/internal/stages"
	"github.com/Mdwiki-TD/svg-translate-web/internal/telemetry"
	"github.com/Mdwiki-TD/svg-translate-web/internal/wiki"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svgtranslate_api_http_requests_total",
		Help: "Total HTTP requests handled by svgtranslate-api",
	})
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting svgtranslate-api")

	cfg := config.Load()

	// Контекст процесса: отменяется по SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Пулы соединений по классам нагрузки.
	interactive := db.Interactive(cfg, logger)
	background := db.Background(cfg, logger)
	defer db.DisposeAll()

	executor := db.NewExecutor(interactive, cfg.Retry, logger)
	bgExecutor := db.NewExecutor(background, cfg.Retry, logger)

	store := repo.NewStore(executor)
	bgStore := repo.NewStore(bgExecutor)

	if err := repo.InitSchema(ctx, executor); err != nil {
		logger.Error("failed to init schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Опциональная событийная шина.
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	if cfg.AMQPURL != "" {
		conn, err := mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		mqConn = conn
		defer mqConn.Close()

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Error("failed to setup mq topology", "error", err)
			os.Exit(1)
		}
		publisher = mq.NewPublisher(mqConn, logger)
	} else {
		logger.Info("RABBITMQ_URL not set, running in single-process mode")
	}

	// Конвейер задач: фоновые стадии работают на фоновом пуле.
	cancels := pipeline.NewCancelRegistry()
	wikiClient := wiki.NewClient(cfg.Wiki, logger)
	processor := batch.NewProcessor(background, cfg.BatchWorkers, logger)

	registry := stages.DefaultRegistry(stages.Deps{
		Wiki:   wikiClient,
		Batch:  processor,
		Store:  bgStore,
		Logger: logger,
	})

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Store:    bgStore,
		Registry: registry,
		Cancels:  cancels,
		DataDir:  cfg.DataDir,
		Logger:   logger,
	})

	launcher := pipeline.NewLauncher(ctx, pipeline.LauncherConfig{
		Store:       store,
		Runner:      runner,
		Cancels:     cancels,
		Broadcaster: publisherOrNil(publisher),
		Logger:      logger,
	})

	// Слушаем broadcast отмены из других процессов.
	if mqConn != nil {
		go consumeCancelBroadcast(ctx, mqConn, launcher, logger)
	}

	// Периодические работы: статус пулов, зачистка зависших задач.
	sweeper := maintenance.New(maintenance.Config{
		Store:   bgStore,
		Pools:   []*db.Pool{interactive, background},
		Cancels: cancels,
		Logger:  logger,
	})
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start maintenance scheduler", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	// HTTP-сервер.
	handler := api.NewHandler(api.Config{
		Store:    store,
		Launcher: launcher,
		Pools: map[string]*db.Pool{
			"interactive": interactive,
			"background":  background,
		},
		Executor: executor,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Дожидаемся фоновых прогонов: они остановятся на границе стадии.
	launcher.Shutdown()

	logger.Info("stopped")
}

// publisherOrNil приводит *mq.Publisher к интерфейсу брокера без
// типизированного nil внутри.
func publisherOrNil(p *mq.Publisher) pipeline.Broadcaster {
	if p == nil {
		return nil
	}
	return p
}

// consumeCancelBroadcast слушает fanout-очередь отмены и применяет
// запросы к локальному реестру.
func consumeCancelBroadcast(ctx context.Context, conn *mq.Connection, launcher *pipeline.Launcher, logger *slog.Logger) {
	queue, err := mq.DeclareBroadcastQueue(conn)
	if err != nil {
		logger.Error("failed to declare broadcast queue", "error", err)
		return
	}

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue: queue,
		Handler: func(ctx context.Context, d *mq.Delivery) error {
			if d.Message.Type != mq.MessageTypeTaskCancelled {
				return nil
			}
			payload, err := mq.ParsePayload[mq.TaskCancelledPayload](&d.Message)
			if err != nil {
				return err
			}
			launcher.HandleRemoteCancel(payload.TaskID)
			return nil
		},
	})

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("cancel consumer error", "error", err)
	}
}
