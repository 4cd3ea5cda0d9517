package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/purge"
)

// ErrNoBrokers is returned by NewKafkaClient when no seed broker is given.
var ErrNoBrokers = errors.New("notify: no kafka brokers configured")

// Event is the record value published for each notification.
type Event struct {
	RootUUID       string    `json:"rootUuid"`
	ComponentUUIDs []string  `json:"componentUuids"`
	DetectedAt     time.Time `json:"detectedAt"`
}

// Producer publishes records synchronously. *kgo.Client satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// NotificationRecorder counts delivered and failed notifications.
type NotificationRecorder interface {
	RecordNotification(components int, success bool)
}

// KafkaConfig configures a KafkaListener client.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaClient creates a franz-go client producing to cfg.Topic by default.
func NewKafkaClient(cfg KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	return kgo.NewClient(opts...)
}

// KafkaListener publishes one record per notification, keyed by root so all
// notifications for a root land on the same partition.
//
// The purge has already committed when the listener runs, so a failed
// publish is logged and counted but never surfaced to the purge.
type KafkaListener struct {
	producer Producer
	topic    string
	clock    clock.Clock
	logger   *logging.Logger
	metrics  NotificationRecorder
}

// KafkaOption configures a KafkaListener.
type KafkaOption func(*KafkaListener)

// WithClock sets the clock stamping DetectedAt.
func WithClock(c clock.Clock) KafkaOption {
	return func(k *KafkaListener) { k.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) KafkaOption {
	return func(k *KafkaListener) { k.logger = l }
}

// WithRecorder sets the notification recorder.
func WithRecorder(r NotificationRecorder) KafkaOption {
	return func(k *KafkaListener) { k.metrics = r }
}

// NewKafkaListener creates a listener publishing to topic. An empty topic
// relies on the producer's default topic.
func NewKafkaListener(p Producer, topic string, opts ...KafkaOption) *KafkaListener {
	k := &KafkaListener{
		producer: p,
		topic:    topic,
		clock:    clock.WallClock,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KafkaListener) OnComponentsDisabling(ctx context.Context, rootUUID string, componentUUIDs []string) {
	log := logging.FromCtx(ctx, k.logger).With(logging.Fields{
		"root":  rootUUID,
		"count": len(componentUUIDs),
	})

	err := k.publish(ctx, rootUUID, componentUUIDs)
	if k.metrics != nil {
		k.metrics.RecordNotification(len(componentUUIDs), err == nil)
	}
	if err != nil {
		log.Errorf("publish disabled components failed", logging.Fields{
			"topic":      k.topic,
			"components": componentUUIDs,
			"error":      err,
		})
		return
	}
	log.Debug("published disabled components")
}

func (k *KafkaListener) publish(ctx context.Context, rootUUID string, componentUUIDs []string) error {
	value, err := json.Marshal(Event{
		RootUUID:       rootUUID,
		ComponentUUIDs: componentUUIDs,
		DetectedAt:     k.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return k.producer.ProduceSync(ctx, &kgo.Record{
		Topic: k.topic,
		Key:   []byte(rootUUID),
		Value: value,
	}).FirstErr()
}

var _ purge.Listener = (*KafkaListener)(nil)
