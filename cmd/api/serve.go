package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"milkrun/internal/api"
	"milkrun/internal/config"
	"milkrun/internal/dispatch"
	"milkrun/internal/events"
	"milkrun/internal/fixtures"
	"milkrun/internal/logger"
	"milkrun/internal/metrics"
	"milkrun/internal/store"
)

var (
	seedPath string
	seedDemo bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  serve,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().BoolVar(&seedDemo, "seed", false, "seed the store with the built-in demo fixtures")
		c.Flags().StringVar(&seedPath, "fixtures", "", "seed the store from a fixtures YAML file")
	}
	rootCmd.AddCommand(serveCmd)
}

// deps owns everything serve opens so it can be closed in reverse order.
type deps struct {
	store   store.Store
	closers []func() error
}

func (d *deps) close(log logger.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, d *deps, log logger.Logger) error {
	if cfg.Database.URL == "" {
		log.Infof("no database url configured, using the in-memory store")
		d.store = store.NewMemory()
		return nil
	}
	pg, err := store.NewPostgres(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	d.closers = append(d.closers, pg.Close)
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	d.store = pg
	return nil
}

// openEvents builds the publisher fan-out and the subscriber behind driver streams.
// With Redis configured, streams and the tracking sequence are shared across replicas.
func openEvents(ctx context.Context, cfg *config.Config, d *deps, log logger.Logger) (events.Publisher, events.Subscriber, dispatch.Sequence, error) {
	multi := events.NewMulti(log)
	var (
		sub events.Subscriber
		seq dispatch.Sequence
	)
	if cfg.Redis.URL != "" {
		rb, err := events.NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis: %w", err)
		}
		d.closers = append(d.closers, rb.Close)
		multi.Add("redis", rb)
		sub = rb
		seq = dispatch.NewRedisSequence(rb.Client(), "")
	} else {
		b := events.NewBroker()
		multi.Add("memory", b)
		sub = b
	}
	if cfg.AMQP.URL != "" {
		ap, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("amqp: %w", err)
		}
		d.closers = append(d.closers, ap.Close)
		multi.Add("amqp", ap)
	}
	if cfg.MQTT.Broker != "" {
		mp, err := events.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mqtt: %w", err)
		}
		d.closers = append(d.closers, func() error { mp.Close(); return nil })
		multi.Add("mqtt", mp)
	}
	if cfg.Webhook.URL != "" {
		wp := events.NewWebhookPublisher(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.MaxAttempts, logger.New("webhook"))
		go wp.Run(ctx)
		multi.Add("webhook", wp)
	}
	log.Infof("event sinks: %d", multi.Len())
	return multi, sub, seq, nil
}

func seed(ctx context.Context, st store.Store) (int, error) {
	if !seedDemo && seedPath == "" {
		return 0, nil
	}
	seeder, ok := st.(store.Seeder)
	if !ok {
		return 0, errors.New("store does not support seeding")
	}
	set, err := fixtures.Load(seedPath)
	if err != nil {
		return 0, err
	}
	return len(set.Orders), set.Seed(ctx, seeder)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("api")
	metrics.RegisterDefault()

	d := &deps{}
	defer d.close(log)
	if err := openStore(ctx, cfg, d, log); err != nil {
		return err
	}
	if n, err := seed(ctx, d.store); err != nil {
		return fmt.Errorf("seed: %w", err)
	} else if n > 0 {
		log.Infof("seeded %d orders", n)
	}
	pub, sub, seq, err := openEvents(ctx, cfg, d, log)
	if err != nil {
		return err
	}

	opts := []dispatch.Option{dispatch.WithPublisher(pub), dispatch.WithLogger(logger.New("dispatch"))}
	if seq != nil {
		opts = append(opts, dispatch.WithSequence(seq))
	}
	eng := dispatch.NewEngine(d.store, dispatch.Config{
		Capacities:     cfg.Capacities(),
		Depot:          cfg.Depot(),
		TrackingPrefix: cfg.Dispatch.TrackingPrefix,
		CommitTimeout:  cfg.Dispatch.CommitTimeout,
	}, opts...)
	srv := api.NewServer(*cfg, d.store, eng, sub, log)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// streams end when the signal context does
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("API listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
