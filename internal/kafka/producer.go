package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

type Producer interface {
	PublishQueueJoined(ctx context.Context, event QueueJoinedEvent) error
	PublishQueueLeft(ctx context.Context, event QueueLeftEvent) error
	PublishMatchCreated(ctx context.Context, event MatchCreatedEvent) error
	PublishSessionStarted(ctx context.Context, event SessionStartedEvent) error
	PublishSessionFinished(ctx context.Context, event SessionFinishedEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) send(ctx context.Context, topic, key string, event any) error {
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "kafka.implProducer.send %s: %v", topic, err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key), // Partition by topic_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) PublishQueueJoined(ctx context.Context, event QueueJoinedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicQueueJoined, event.TopicID, event)
}

func (p *implProducer) PublishQueueLeft(ctx context.Context, event QueueLeftEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicQueueLeft, event.TopicID, event)
}

func (p *implProducer) PublishMatchCreated(ctx context.Context, event MatchCreatedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicMatchCreated, event.TopicID, event)
}

func (p *implProducer) PublishSessionStarted(ctx context.Context, event SessionStartedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicSessionStarted, event.TopicID, event)
}

func (p *implProducer) PublishSessionFinished(ctx context.Context, event SessionFinishedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicSessionFinished, event.TopicID, event)
}

func (p *implProducer) Close() error {
	return p.prod.Close()
}

// NopProducer is used when Kafka is disabled by configuration.
type NopProducer struct{}

func (NopProducer) PublishQueueJoined(context.Context, QueueJoinedEvent) error         { return nil }
func (NopProducer) PublishQueueLeft(context.Context, QueueLeftEvent) error             { return nil }
func (NopProducer) PublishMatchCreated(context.Context, MatchCreatedEvent) error       { return nil }
func (NopProducer) PublishSessionStarted(context.Context, SessionStartedEvent) error   { return nil }
func (NopProducer) PublishSessionFinished(context.Context, SessionFinishedEvent) error { return nil }
func (NopProducer) Close() error                                                       { return nil }
