package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alfredjeanlab/planetpulse/internal/archive"
	"github.com/alfredjeanlab/planetpulse/internal/cache"
	"github.com/alfredjeanlab/planetpulse/internal/catalog"
	"github.com/alfredjeanlab/planetpulse/internal/config"
	"github.com/alfredjeanlab/planetpulse/internal/consumer"
	"github.com/alfredjeanlab/planetpulse/internal/events"
	"github.com/alfredjeanlab/planetpulse/internal/planets"
	"github.com/alfredjeanlab/planetpulse/internal/store"
	"github.com/alfredjeanlab/planetpulse/internal/store/postgres"
)

// newLogger builds the process logger. format is "json" or "text".
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("PLANETS_LOG_FORMAT: unknown format %q (must be json or text)", format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("PLANETS_LOG_LEVEL: unknown level %q", s)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// publisher is what the process needs from a broker client.
type publisher interface {
	events.Publisher
	events.RawPublisher
}

// newPublisher builds the one publisher owned by this process.
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (publisher, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		pub, err := events.NewKafkaPublisher(ctx, events.KafkaConfig{
			Brokers:          cfg.KafkaBrokers,
			BootstrapRetries: cfg.BootstrapRetries,
			BootstrapDelay:   cfg.BootstrapDelay,
		}, events.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("events enabled", "broker", cfg.Broker, "brokers", strings.Join(cfg.KafkaBrokers, ","))
		return pub, nil
	case config.BrokerNATS:
		pub, err := events.NewNATSPublisher(ctx, events.NATSConfig{
			URL:              cfg.NATSURL,
			BootstrapRetries: cfg.BootstrapRetries,
			BootstrapDelay:   cfg.BootstrapDelay,
		}, events.WithNATSLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("events enabled", "broker", cfg.Broker, "nats_url", cfg.NATSURL)
		return pub, nil
	default:
		logger.Info("events disabled", "broker", cfg.Broker)
		return &events.NoopPublisher{}, nil
	}
}

// newSource subscribes to the event topic with the configured consumer group.
func newSource(cfg *config.Config) (events.Source, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		return events.NewKafkaSource(cfg.KafkaBrokers, cfg.Topic, cfg.GroupID), nil
	case config.BrokerNATS:
		src, err := events.NewNATSSource(cfg.NATSURL, cfg.Topic, cfg.GroupID)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("consuming requires a broker (PLANETS_BROKER=%s)", cfg.Broker)
	}
}

func consumerOptions(cfg *config.Config, dlq events.RawPublisher) consumer.Options {
	return consumer.Options{
		Policy:       consumer.Policy(cfg.FailurePolicy),
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
		DLQTopic:     cfg.DLQTopic,
		DLQ:          dlq,
	}
}

// openCache opens the configured cache and checks that it answers.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	c, err := cache.Open(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	return c, nil
}

func openStore(cfg *config.Config) (*postgres.PostgresStore, error) {
	return postgres.New(cfg.DatabaseURL)
}

func newCatalog(st store.Store, c cache.Cache, pub events.Publisher, cfg *config.Config, logger *slog.Logger) *catalog.Service {
	return catalog.New(st, c, events.NewEmitter(pub, cfg.Topic, logger), logger)
}

func newFetchTask(cfg *config.Config, up planets.Upserter, logger *slog.Logger) *planets.FetchTask {
	src := planets.NewSWAPIClient(cfg.FetchURL, cfg.FetchTimeout)
	br := planets.NewBreaker(cfg.BreakerThreshold, cfg.BreakerReset, logger)
	return planets.NewFetchTask(src, br, up, planets.TaskConfig{
		MaxRetries: cfg.FetchMaxRetries,
		RetryDelay: cfg.FetchRetryDelay,
	}, logger)
}

// archiveDestinations returns the configured archive targets.
func archiveDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]archive.Destination, error) {
	var dests []archive.Destination
	if cfg.ArchiveS3Bucket != "" {
		s3Dest, err := archive.NewS3Destination(ctx, cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("creating S3 archive destination: %w", err)
		}
		dests = append(dests, s3Dest)
		logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "prefix", cfg.ArchiveS3Prefix)
	}
	if cfg.ArchiveDir != "" {
		dests = append(dests, archive.NewDirDestination(cfg.ArchiveDir))
		logger.Info("archive directory destination enabled", "dir", cfg.ArchiveDir)
	}
	return dests, nil
}
