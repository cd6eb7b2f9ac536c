// Package app собирает сервер flowstack из компонентов.
//
// Порядок запуска: хранилище → (RabbitMQ) → канал событий → engine →
// persister → scheduler → HTTP. Остановка идёт в обратном порядке:
// HTTP → scheduler → ожидание выполнений → persister (дочитывает канал)
// → хранилище → RabbitMQ.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Flowstack/internal/api"
	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/config"
	"github.com/shaiso/Flowstack/internal/engine"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/history"
	"github.com/shaiso/Flowstack/internal/mq"
	"github.com/shaiso/Flowstack/internal/nodes"
	"github.com/shaiso/Flowstack/internal/repo"
	"github.com/shaiso/Flowstack/internal/scheduler"
	"github.com/shaiso/Flowstack/internal/service"
)

// shutdownTimeout — время на graceful shutdown.
const shutdownTimeout = 10 * time.Second

// notifyTimeout — ограничение на публикацию одного события.
const notifyTimeout = 5 * time.Second

// App — собранный сервер.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store     repo.Store
	mqConn    *mq.Connection
	channel   *channel.Channel
	engine    *engine.Engine
	persister *history.Persister
	scheduler *scheduler.Scheduler
	service   *service.FlowService
	mux       *http.ServeMux

	startTime time.Time
}

// New открывает хранилище и создаёт все компоненты. Ничего не запускает.
//
// Недоступность RabbitMQ не является ошибкой: история пишется,
// события просто не публикуются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := repo.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "driver", cfg.Storage.Driver)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		startTime: time.Now(),
	}

	var notifier history.Notifier
	if cfg.RabbitMQ.URL != "" {
		conn, err := mq.Dial(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, events will not be published", "error", err)
		} else {
			a.mqConn = conn
			if err := mq.SetupTopology(conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			notifier = mq.NewNotifier(mq.NewPublisher(conn, logger), notifyTimeout)
			logger.Info("RabbitMQ connected")
		}
	}

	registry := nodes.DefaultRegistry()
	fieldRegistry := fields.Default()

	a.channel = channel.New(channel.Config{
		Capacity:    cfg.Channel.Capacity,
		SendRetries: cfg.Channel.SendRetries,
		SendWait:    cfg.Channel.SendWait,
		Logger:      logger,
	})

	a.engine = engine.New(engine.Config{
		Nodes:   registry,
		Fields:  fieldRegistry,
		Emitter: a.channel,
		Logger:  logger,
	})

	a.persister = history.New(history.Config{
		Source:   a.channel,
		Store:    store,
		Nodes:    registry,
		Notifier: notifier,
		Logger:   logger,
	})

	a.scheduler = scheduler.New(scheduler.Config{
		Store:    store,
		Executor: a.engine,
		Logger:   logger,
	})

	a.service = service.New(service.Config{
		Store:     store,
		Engine:    a.engine,
		Scheduler: a.scheduler,
		Nodes:     registry,
		Logger:    logger,
	})

	a.mux = http.NewServeMux()
	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{Service: a.service, Logger: logger}).RegisterRoutes(a.mux)

	return a, nil
}

// Service возвращает сервис flows.
func (a *App) Service() *service.FlowService { return a.service }

// Scheduler возвращает планировщик.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Handler возвращает корневой HTTP-обработчик.
func (a *App) Handler() http.Handler { return a.mux }

// Start запускает persister и scheduler.
func (a *App) Start(ctx context.Context) error {
	a.persister.Start(context.WithoutCancel(ctx))
	if err := a.scheduler.Start(ctx); err != nil {
		a.persister.Stop()
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Run запускает компоненты и HTTP-сервер и блокируется до отмены ctx
// или ошибки сервера. Перед возвратом выполняет Shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:    a.cfg.HTTP.Addr,
		Handler: a.mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown останавливает компоненты в обратном порядке и закрывает
// хранилище и соединение с RabbitMQ.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}

	// Ручные запуски scheduler не отслеживает.
	waited := make(chan struct{})
	go func() {
		a.engine.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		a.logger.Warn("executions still running at shutdown")
	}

	a.persister.Stop()

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if a.mqConn != nil {
		if err := a.mqConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}

	a.logger.Info("stopped")
	return errors.Join(errs...)
}

func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %s", time.Since(a.startTime).Round(time.Second))
}

// NewLocalService создаёт сервис без хранилища и расписаний.
// Подходит для операций, которым нужен только engine: проверки
// определений, разового запуска, каталога node и полей.
func NewLocalService(logger *slog.Logger) *service.FlowService {
	registry := nodes.DefaultRegistry()
	eng := engine.New(engine.Config{
		Nodes:  registry,
		Fields: fields.Default(),
		Logger: logger,
	})
	return service.New(service.Config{
		Engine: eng,
		Nodes:  registry,
		Logger: logger,
	})
}
