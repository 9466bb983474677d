// Package redpanda connects the intake workers to Redpanda: topic setup, the
// order producer and the fulfillment consumer.
package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	// TopicIntakeSubmitted carries completed intakes, keyed by order ID.
	TopicIntakeSubmitted = "intake.submitted"
	// TopicIntakeRejected records disqualified intakes for audit.
	TopicIntakeRejected = "intake.rejected"
	// TopicPharmacyOrders carries one message per pharmacy of an order.
	TopicPharmacyOrders = "pharmacy.orders"
	// TopicDeadLetter receives outbox events that exhausted their retries.
	TopicDeadLetter = "dead.letter"
)

// Topic describes a topic the workers rely on.
type Topic struct {
	Name       string
	Partitions int32
	Retention  time.Duration
}

func (t Topic) configs() map[string]*string {
	retention := strconv.FormatInt(t.Retention.Milliseconds(), 10)
	policy, compression := "delete", "lz4"
	return map[string]*string{
		"retention.ms":     &retention,
		"cleanup.policy":   &policy,
		"compression.type": &compression,
	}
}

// Topics returns every topic of the intake pipeline.
func Topics() []Topic {
	const week = 7 * 24 * time.Hour
	return []Topic{
		{Name: TopicIntakeSubmitted, Partitions: 6, Retention: week},
		// Rejections are kept longer for audit.
		{Name: TopicIntakeRejected, Partitions: 3, Retention: 30 * 24 * time.Hour},
		{Name: TopicPharmacyOrders, Partitions: 6, Retention: week},
		{Name: TopicDeadLetter, Partitions: 3, Retention: 4 * week},
	}
}

// Admin manages topics and reads consumer group lag.
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates an admin client for brokers.
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create admin client: %w", err)
	}
	return &Admin{client: kadm.NewClient(cl), logger: logger}, nil
}

// Close closes the admin client.
func (a *Admin) Close() {
	a.client.Close()
}

// EnsureTopics creates the missing pipeline topics with the broker's default
// replication. Existing topics are left alone; fewer partitions than wanted
// only produce a warning, since partitions cannot be removed again.
func (a *Admin) EnsureTopics(ctx context.Context) error {
	existing, err := a.client.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	missing, short := plan(Topics(), existing)
	for _, name := range short {
		a.logger.Warn("topic has fewer partitions than configured", zap.String("topic", name))
	}
	for _, t := range missing {
		resp, err := a.client.CreateTopic(ctx, t.Partitions, -1, t.configs(), t.Name)
		if err == nil {
			err = resp.Err
		}
		// Another process may have created it since we listed.
		if errors.Is(err, kerr.TopicAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create topic %s: %w", t.Name, err)
		}
		a.logger.Info("topic created",
			zap.String("topic", t.Name),
			zap.Int32("partitions", t.Partitions),
			zap.Duration("retention", t.Retention))
	}
	return nil
}

// plan compares wanted topics with the cluster. It returns the topics to
// create and the names of existing topics with too few partitions.
func plan(want []Topic, have kadm.TopicDetails) (missing []Topic, short []string) {
	for _, t := range want {
		d, ok := have[t.Name]
		if !ok || d.Err != nil {
			missing = append(missing, t)
			continue
		}
		if int32(len(d.Partitions)) < t.Partitions {
			short = append(short, t.Name)
		}
	}
	return missing, short
}

// ListTopics returns the sorted names of all non-internal topics.
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	details, err := a.client.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	names := make([]string, 0, len(details))
	for name, d := range details {
		if !d.IsInternal {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetConsumerGroupLag returns the lag of groupID per topic and partition.
func (a *Admin) GetConsumerGroupLag(ctx context.Context, groupID string) (map[string]map[int32]int64, error) {
	lags, err := a.client.Lag(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("consumer group lag: %w", err)
	}
	out := make(map[string]map[int32]int64)
	lags.Each(func(g kadm.DescribedGroupLag) {
		if g.Error() != nil {
			a.logger.Warn("group lag incomplete", zap.String("group", g.Group), zap.Error(g.Error()))
		}
		for topic, partitions := range g.Lag {
			if out[topic] == nil {
				out[topic] = make(map[int32]int64, len(partitions))
			}
			for p, l := range partitions {
				out[topic][p] = l.Lag
			}
		}
	})
	return out, nil
}

// HealthCheck pings one of brokers.
func HealthCheck(ctx context.Context, brokers []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer cl.Close()

	if err := cl.Ping(ctx); err != nil {
		return fmt.Errorf("ping brokers: %w", err)
	}
	return nil
}
