package redpanda

import (
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kadm"
)

func TestTopics(t *testing.T) {
	want := map[string]bool{
		TopicIntakeSubmitted: true,
		TopicIntakeRejected:  true,
		TopicPharmacyOrders:  true,
		TopicDeadLetter:      true,
	}
	for _, topic := range Topics() {
		if !want[topic.Name] {
			t.Errorf("unexpected topic %s", topic.Name)
		}
		delete(want, topic.Name)
		if topic.Partitions <= 0 || topic.Retention <= 0 {
			t.Errorf("topic %s: incomplete config", topic.Name)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing topics: %v", want)
	}
}

func TestTopicConfigs(t *testing.T) {
	cfg := Topics()[0].configs()
	if got := *cfg["retention.ms"]; got != "604800000" {
		t.Errorf("retention.ms = %s", got)
	}
	if got := *cfg["cleanup.policy"]; got != "delete" {
		t.Errorf("cleanup.policy = %s", got)
	}
}

func partitions(n int) kadm.PartitionDetails {
	p := make(kadm.PartitionDetails, n)
	for i := range n {
		p[int32(i)] = kadm.PartitionDetail{Partition: int32(i)}
	}
	return p
}

func TestPlan(t *testing.T) {
	want := []Topic{
		{Name: TopicIntakeSubmitted, Partitions: 6},
		{Name: TopicIntakeRejected, Partitions: 3},
		{Name: TopicPharmacyOrders, Partitions: 6},
	}
	have := kadm.TopicDetails{
		TopicIntakeSubmitted: {Topic: TopicIntakeSubmitted, Partitions: partitions(6)},
		TopicIntakeRejected:  {Topic: TopicIntakeRejected, Partitions: partitions(1)},
		TopicPharmacyOrders:  {Topic: TopicPharmacyOrders, Err: errors.New("unknown topic")},
	}

	missing, short := plan(want, have)

	if len(missing) != 1 || missing[0].Name != TopicPharmacyOrders {
		t.Errorf("missing = %v", missing)
	}
	if len(short) != 1 || short[0] != TopicIntakeRejected {
		t.Errorf("short = %v", short)
	}
}
