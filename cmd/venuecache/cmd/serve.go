package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/ch"
	"github.com/venueops/entitycache/cron"
	"github.com/venueops/entitycache/kafka"
	"go.uber.org/zap"
)

func newServeCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the session warm until interrupted",
		Long: "serve warms the session, then revalidates stale collections on schedule, " +
			"publishes cache events to Kafka and ClickHouse and applies Kafka invalidations, " +
			"as configured.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				return serve(cmd.Context(), stdout, a, flags.filters())
			})
		},
	}
}

// serve runs until ctx is done. Sinks are stopped in reverse start order.
func serve(ctx context.Context, stdout io.Writer, a *app, filters cache.FilterSet) error {
	var stops []func()
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}()

	if a.cfg.ClickHouse != nil {
		stop, err := startAudit(ctx, a)
		if err != nil {
			return err
		}
		stops = append(stops, stop)
	}

	if a.cfg.Kafka != nil {
		stop, err := startKafka(ctx, a)
		if err != nil {
			return err
		}
		stops = append(stops, stop)
	}

	// sinks are subscribed first so the warmup events reach them
	if err := a.session.WarmupAll(ctx, filters); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		a.log.Warn("initial warmup incomplete", zap.Error(err))
	}

	if a.cfg.Revalidate.Enabled {
		rv, err := cron.NewRevalidator(a.log, a.cfg.Revalidate, a.session.Syncers(), filters)
		if err != nil {
			return err
		}
		rv.Start()
		stops = append(stops, rv.Close)
	}

	_, _ = fmt.Fprintf(stdout, "serving session %s\n", a.session.ID)
	<-ctx.Done()
	_, _ = fmt.Fprintln(stdout, "shutting down")
	return nil
}

func startAudit(ctx context.Context, a *app) (func(), error) {
	client, err := ch.NewClient(a.log, a.cfg.ClickHouse)
	if err != nil {
		return nil, err
	}
	if err := ch.EnsureAuditTable(ctx, client, a.cfg.ClickHouse.AuditTable); err != nil {
		_ = client.Close()
		return nil, err
	}
	writer, err := client.Writer()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := writer.Start(); err != nil {
		_ = client.Close()
		return nil, err
	}
	auditor, err := ch.NewAuditor(a.log, a.cfg.ClickHouse.AuditTable, writer, a.session.Events())
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return func() {
		auditor.Close()
		// closes the writer, flushing buffered rows
		logErr(a.log, "failed to close clickhouse client", client.Close())
	}, nil
}

func startKafka(ctx context.Context, a *app) (func(), error) {
	cfg := a.cfg.Kafka
	producer, err := kafka.NewProducer(a.log, cfg.Producer)
	if err != nil {
		return nil, err
	}
	feed, err := kafka.NewFeed(a.log, cfg.Feed, producer, a.session.Events())
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	stop := func() {
		logErr(a.log, "failed to close change feed", feed.Close())
		logErr(a.log, "failed to close kafka producer", producer.Close())
	}
	if cfg.Consumer == nil {
		return stop, nil
	}

	consumer, err := kafka.NewConsumer(a.log, cfg.Consumer)
	if err != nil {
		stop()
		return nil, err
	}
	if err := consumer.Start(ctx, kafka.InvalidationHandler(a.log, a.session.Syncers())); err != nil {
		stop()
		return nil, errors.Join(err, consumer.Close())
	}
	return func() {
		logErr(a.log, "failed to close kafka consumer", consumer.Close())
		stop()
	}, nil
}
