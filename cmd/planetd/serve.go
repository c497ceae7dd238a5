package main

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/analytics"
	"github.com/alfredjeanlab/planetpulse/internal/archive"
	"github.com/alfredjeanlab/planetpulse/internal/config"
	"github.com/alfredjeanlab/planetpulse/internal/consumer"
	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/schedule"
	"github.com/alfredjeanlab/planetpulse/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the stats API, the analytics consumer and the periodic jobs",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		pub, err := newPublisher(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		metrics.Register(prometheus.DefaultRegisterer)

		agg := analytics.New(c, st, cfg.StatsTTL, logger)
		cat := newCatalog(st, c, pub, cfg, logger)

		// Consumer.
		var wg sync.WaitGroup
		if cfg.Broker != config.BrokerNone {
			src, err := newSource(cfg)
			if err != nil {
				return err
			}
			cons, err := consumer.New(src, st, agg, consumerOptions(cfg, pub), logger)
			if err != nil {
				src.Close()
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer src.Close()
				if err := cons.Run(ctx); err != nil {
					logger.Error("consumer error", "err", err)
				}
			}()
		} else {
			logger.Info("consumer disabled (PLANETS_BROKER=none)")
		}

		// Periodic jobs.
		fetchSched := schedule.New("planet-fetch", newFetchTask(cfg, cat, logger), cfg.FetchInterval, logger)
		fetchSched.Start(ctx)

		var archiveSched *schedule.Scheduler
		if cfg.ArchiveInterval > 0 {
			dests, err := archiveDestinations(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to set up audit archive", "err", err)
			} else if len(dests) == 0 {
				logger.Warn("PLANETS_ARCHIVE_INTERVAL set but no archive destination configured")
			} else {
				archiveSched = schedule.New("audit-archive", archive.New(st, dests, logger), cfg.ArchiveInterval, logger)
				archiveSched.Start(ctx)
			}
		}

		srv := server.New(agg, logger,
			server.WithCheck("store", st.Ping),
			server.WithCheck("cache", c.Ping),
		)
		logger.Info("planetd started",
			"http_addr", cfg.HTTPAddr,
			"broker", cfg.Broker,
			"topic", cfg.Topic,
			"failure_policy", cfg.FailurePolicy,
		)
		serveErr := srv.ListenAndServe(ctx, cfg.HTTPAddr, cfg.AuthToken)

		// Graceful shutdown.
		stop()
		fetchSched.Stop()
		if archiveSched != nil {
			archiveSched.Stop()
		}
		wg.Wait()
		logger.Info("planetd stopped")
		return serveErr
	},
}

var consumeCmd = &cobra.Command{
	Use:     "consume",
	Short:   "Run only the analytics consumer",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return runConsumer(ctx)
	},
}

func runConsumer(ctx context.Context) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var dlq publisher
	if cfg.FailurePolicy == config.PolicyDeadLetter {
		dlq, err = newPublisher(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer dlq.Close()
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	cons, err := consumer.New(src, st, analytics.New(c, st, cfg.StatsTTL, logger), consumerOptions(cfg, dlq), logger)
	if err != nil {
		return err
	}
	return cons.Run(ctx)
}
