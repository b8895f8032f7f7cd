package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// TopicSpec describes the attempt-events topic. Attempt ids are the record
// key, so a single partition is enough for ordering and more only helps
// consumer fan-out.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Retention         time.Duration
}

// DefaultTopicSpec keeps a week of attempt history on a one-node cluster.
func DefaultTopicSpec(name string) TopicSpec {
	if name == "" {
		name = DefaultTopic
	}
	return TopicSpec{Name: name, Partitions: 1, ReplicationFactor: 1, Retention: 7 * 24 * time.Hour}
}

func (s TopicSpec) validate() error {
	switch {
	case s.Name == "":
		return errors.New("topic: empty name")
	case s.Partitions <= 0:
		return fmt.Errorf("topic %s: partitions %d", s.Name, s.Partitions)
	case s.ReplicationFactor <= 0:
		return fmt.Errorf("topic %s: replication factor %d", s.Name, s.ReplicationFactor)
	}
	return nil
}

func (s TopicSpec) request() *kmsg.CreateTopicsRequest {
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = s.Name
	t.NumPartitions = s.Partitions
	t.ReplicationFactor = s.ReplicationFactor
	if s.Retention > 0 {
		c := kmsg.NewCreateTopicsRequestTopicConfig()
		c.Name = "retention.ms"
		v := strconv.FormatInt(s.Retention.Milliseconds(), 10)
		c.Value = &v
		t.Configs = append(t.Configs, c)
	}
	req := kmsg.NewPtrCreateTopicsRequest()
	req.TimeoutMillis = 30_000
	req.Topics = append(req.Topics, t)
	return req
}

// topicResult maps a CreateTopics reply to an error. An existing topic is
// success and reports created=false.
func topicResult(resp *kmsg.CreateTopicsResponse, name string) (created bool, err error) {
	for _, t := range resp.Topics {
		if t.Topic != name {
			continue
		}
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			if errors.Is(err, kerr.TopicAlreadyExists) {
				return false, nil
			}
			if t.ErrorMessage != nil {
				return false, fmt.Errorf("topic %s: %w: %s", name, err, *t.ErrorMessage)
			}
			return false, fmt.Errorf("topic %s: %w", name, err)
		}
		return true, nil
	}
	return false, fmt.Errorf("topic %s: missing from CreateTopics response", name)
}

// ensureTopic creates the topic unless the broker already has it.
func ensureTopic(ctx context.Context, client *kgo.Client, spec TopicSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	resp, err := spec.request().RequestWith(ctx, client)
	if err != nil {
		return fmt.Errorf("op=redpanda.ensure_topic: %w", err)
	}
	created, err := topicResult(resp, spec.Name)
	if err != nil {
		return fmt.Errorf("op=redpanda.ensure_topic: %w", err)
	}
	if created {
		slog.Info("attempt events topic created", slog.String("topic", spec.Name), slog.Int("partitions", int(spec.Partitions)))
	}
	return nil
}
