package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/dray-io/purger/internal/config"
	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/metrics"
	"github.com/dray-io/purger/internal/notify"
	"github.com/dray-io/purger/internal/profiler"
	"github.com/dray-io/purger/internal/purge"
	"github.com/dray-io/purger/internal/purge/sqlstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the purgerd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "purgerd",
		Short: "Purge analysis history and project data from the store",
		Long: `purgerd runs one purge procedure against the configured store and exits.

Each procedure commits per phase, so an interrupted run can simply be
started again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "override database path")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "override log format (json|text)")

	cmd.AddCommand(newRootPurgeCommand(opts))
	cmd.AddCommand(newAnalysesCommand(opts))
	cmd.AddCommand(newAbortedAnalysesCommand(opts))
	cmd.AddCommand(newCeActivityCommand(opts))
	cmd.AddCommand(newCeQueueCommand(opts))
	cmd.AddCommand(newDisabledCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Observability.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Observability.LogFormat = o.LogFormat
	}
	return cfg, cfg.Validate()
}

// env is everything one purge invocation needs.
type env struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	purge    *metrics.PurgeMetrics
	notify   *metrics.NotifyMetrics
	store    *sqlstore.Store
	kafka    *kgo.Client
}

func (o *RootOptions) open() (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	reg := prometheus.NewRegistry()
	e := &env{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		purge:    metrics.NewPurgeMetricsWithRegistry(reg),
		notify:   metrics.NewNotifyMetricsWithRegistry(reg),
	}

	e.store, err = sqlstore.Open(cfg.Database.Path,
		sqlstore.WithBusyTimeout(time.Duration(cfg.Database.BusyTimeoutMs)*time.Millisecond),
		sqlstore.WithRecorder(metrics.NewStoreMetricsWithRegistry(reg)),
	)
	if err != nil {
		return nil, err
	}

	if len(cfg.Notify.KafkaBrokers) > 0 {
		e.kafka, err = notify.NewKafkaClient(notify.KafkaConfig{
			Brokers:  cfg.Notify.KafkaBrokers,
			Topic:    cfg.Notify.Topic,
			ClientID: cfg.Notify.ClientID,
		})
		if err != nil {
			e.store.Close()
			return nil, fmt.Errorf("create kafka client: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.kafka != nil {
		e.kafka.Close()
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warnf("close store failed", logging.Fields{"error": err})
	}
	if err := metrics.WriteTextfile(e.cfg.Observability.MetricsTextfile, e.registry); err != nil {
		e.logger.Warnf("write metrics textfile failed", logging.Fields{
			"path":  e.cfg.Observability.MetricsTextfile,
			"error": err,
		})
	}
}

// listener returns where missed disabled components are reported.
func (e *env) listener() purge.Listener {
	log := notify.NewLogListener(e.logger)
	if e.kafka == nil {
		return log
	}
	return notify.Multi{log, notify.NewKafkaListener(e.kafka, e.cfg.Notify.Topic,
		notify.WithLogger(e.logger),
		notify.WithRecorder(e.notify),
	)}
}

func (e *env) commands(sess *sqlstore.Session, logger *logging.Logger) *purge.Commands {
	prof := profiler.New(
		[]profiler.Sink{profiler.NewMetricsSink(e.purge), profiler.NewLogSink(logger)},
		profiler.WithLogger(logger),
		profiler.WithFailureRecorder(e.purge),
	)
	return purge.NewCommands(sess,
		purge.WithProfiler(prof),
		purge.WithLogger(logger),
		purge.WithMaxAnalysesPerQuery(e.cfg.Purge.MaxAnalysesPerQuery),
		purge.WithMaxResourcesPerQuery(e.cfg.Purge.MaxResourcesPerQuery),
	)
}

// runPurge opens the store, runs fn in a fresh session under a new run ID
// and tears everything down again.
func runPurge(ctx context.Context, opts *RootOptions, procedure string, fields logging.Fields,
	fn func(context.Context, *purge.Commands, *env) error) error {
	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.close()

	runID := uuid.New().String()
	logger := e.logger.WithRunID(runID).With(logging.Fields{"procedure": procedure}).With(fields)
	ctx = logging.WithLogger(logging.WithRunID(ctx, runID), logger)

	sess := e.store.Session()
	defer sess.Close()

	start := time.Now()
	logger.Info("purge started")
	if err := fn(ctx, e.commands(sess, logger), e); err != nil {
		logger.Errorf("purge failed", logging.Fields{"error": err})
		return fmt.Errorf("%s: %w", procedure, err)
	}
	logger.Infof("purge finished", logging.Fields{"duration_ms": time.Since(start).Milliseconds()})
	return nil
}
