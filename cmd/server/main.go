package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"tableorders/pkg/admin"
	"tableorders/pkg/config"
	"tableorders/pkg/events"
	"tableorders/pkg/events/amqp"
	"tableorders/pkg/events/kafka"
	"tableorders/pkg/events/postgres"
	"tableorders/pkg/events/redis"
	"tableorders/pkg/logger"
	"tableorders/pkg/metrics"
	"tableorders/pkg/order/memory"
	"tableorders/pkg/order/sequence"
	"tableorders/pkg/otel"
	"tableorders/pkg/page"
	"tableorders/pkg/router"
	"tableorders/pkg/server"
	"tableorders/pkg/worker"
)

const serviceName = "tableorders"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Serve restaurant table orders over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg := config.Bind(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, *cfg)
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, level, serviceName, otel.GetTraceID)
	defer log.Sync()

	_, shutdownTracing, err := otel.InitTracing(log, otel.Config{
		ServiceName: serviceName,
		Host:        cfg.OtelHost,
		Probability: cfg.OtelProbability,
	})
	if err != nil {
		log.Error(ctx, "init tracing", "error", err)
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(sctx, "tracing shutdown", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sink, err := openSinks(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "open event sinks", "error", err)
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn(context.Background(), "close event sinks", "error", err)
		}
	}()

	repo := events.Wrap(memory.New(cfg.Tables, sequence.New(0)), sink, log, cfg.PublishTimeout)
	pages, err := page.NewRenderer()
	if err != nil {
		return errors.Wrap(err, "load pages")
	}
	pool := worker.New(worker.Config{Workers: cfg.Workers, Logger: log, Metrics: m})
	defer pool.Close()

	srv := server.New(server.Config{
		Pool:    pool,
		Router:  router.New(repo, m),
		Pages:   pages,
		Logger:  log,
		Metrics: m,
	})

	if cfg.AdminAddr != "" {
		actx, cancelAdmin := context.WithCancel(ctx)
		wait := startAdmin(actx, cfg.AdminAddr, admin.NewHandler(repo, pool, reg, log), log)
		defer func() {
			cancelAdmin()
			if err := wait(); err != nil {
				log.Error(context.Background(), "admin server", "error", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Error(ctx, "listen", "addr", cfg.ListenAddr, "error", err)
		return errors.Wrapf(err, "listen %s", cfg.ListenAddr)
	}
	if err := srv.Serve(ctx, ln); err != nil {
		log.Error(ctx, "serve", "error", err)
		return err
	}
	log.Info(context.Background(), "shutting down", "queued", pool.Len())
	return nil
}

// startAdmin serves the admin handler until ctx ends. The returned function
// blocks until the server has stopped and reports why.
func startAdmin(ctx context.Context, addr string, h http.Handler, log *logger.Logger) func() error {
	done := make(chan error, 1)
	go func() {
		log.Info(ctx, "admin listening", "addr", addr)
		done <- admin.Run(ctx, addr, h)
	}()
	return func() error { return <-done }
}

// openSinks connects every configured event sink. Sinks opened before a
// failure are closed again.
func openSinks(ctx context.Context, cfg config.Config, log *logger.Logger) (events.Sink, error) {
	var sinks events.Multi
	fail := func(err error, what string) (events.Sink, error) {
		return nil, errors.CombineErrors(errors.Wrap(err, what), sinks.Close())
	}

	if cfg.DatabaseURL != "" {
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err, "postgres journal")
		}
		sinks = append(sinks, s)
		log.Info(ctx, "event sink enabled", "sink", "postgres")
	}
	if cfg.RedisAddr != "" {
		s, err := redis.Dial(ctx, cfg.RedisAddr, redis.DefaultChannel)
		if err != nil {
			return fail(err, "redis publisher")
		}
		sinks = append(sinks, s)
		log.Info(ctx, "event sink enabled", "sink", "redis", "channel", redis.DefaultChannel)
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info(ctx, "event sink enabled", "sink", "kafka", "topic", cfg.KafkaTopic)
	}
	if cfg.AMQPURL != "" {
		s, err := amqp.Dial(cfg.AMQPURL, amqp.DefaultExchange)
		if err != nil {
			return fail(err, "amqp publisher")
		}
		sinks = append(sinks, s)
		log.Info(ctx, "event sink enabled", "sink", "amqp", "exchange", amqp.DefaultExchange)
	}

	if len(sinks) == 0 {
		return events.Discard{}, nil
	}
	return sinks, nil
}
