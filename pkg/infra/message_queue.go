package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	ErrPermanent = errors.New("permanent messaging error")
	MaxMsgSize   = 10 * 1024 // 10KB
)

type MessageQueue interface {
	Enqueue(topic string, message []byte, options *EnqueueOptions) error
	// handler shouldn't be a blocking call as it would trigger redelivery of
	// the message if certain period of time has passed without ack.
	Dequeue(topic string, handler func(message []byte) error) error
	Close()
}

type EnqueueOptions struct {
	IdempotentKey string
}

type msgQueue struct {
	consumerName    string
	js              jetstream.JetStream
	consumer        jetstream.Consumer
	consumerContext jetstream.ConsumeContext
	useBackoffRetry bool
}

type NATsMessageQueueManager struct {
	queueName string
	js        jetstream.JetStream
}

func NewNATsMessageQueueManager(queueName string, subjectWildCards []string, nc *nats.Conn) (*NATsMessageQueueManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("error creating JetStream context: %w", err)
	}

	ctx := context.Background()
	stream, err := js.Stream(ctx, queueName)
	if err != nil {
		logger.Warn("Stream not found, creating new stream", "stream", queueName)
	}
	if stream != nil {
		info, _ := stream.Info(ctx)
		logger.Info("Stream found", "name", info.Config.Name, "subjects", info.Config.Subjects, "state", info.State.Msgs)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        queueName,
		Description: "Stream for " + queueName,
		Subjects:    subjectWildCards,
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      2 * 24 * time.Hour, // 2 days
	})
	if err != nil {
		return nil, fmt.Errorf("error creating JetStream stream: %w", err)
	}

	return &NATsMessageQueueManager{
		queueName: queueName,
		js:        js,
	}, nil
}

func (m *NATsMessageQueueManager) NewMessageQueue(consumerName string) (MessageQueue, error) {
	mq := &msgQueue{
		consumerName: consumerName,
		js:           m.js,
	}
	consumerWildCard := fmt.Sprintf("%s.%s.*", m.queueName, consumerName)
	cfg := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		MaxAckPending: 4,
		FilterSubjects: []string{
			consumerWildCard,
		},
		MaxDeliver: 3,
	}
	logger.Info("Creating consumer for subject", "name", cfg.Name, "durable", cfg.Durable, "filterSubjects", cfg.FilterSubjects)
	consumer, err := m.js.CreateOrUpdateConsumer(context.Background(), m.queueName, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating JetStream consumer: %w", err)
	}

	mq.consumer = consumer
	return mq, nil
}

func (mq *msgQueue) Enqueue(topic string, message []byte, options *EnqueueOptions) error {
	header := nats.Header{}
	if options != nil && options.IdempotentKey != "" {
		header.Add("Nats-Msg-Id", options.IdempotentKey)
	}

	_, err := mq.js.PublishMsg(context.Background(), &nats.Msg{
		Subject: topic,
		Data:    message,
		Header:  header,
	})

	if err != nil {
		return fmt.Errorf("error enqueueing message: %w", err)
	}
	return nil
}

func (mq *msgQueue) Dequeue(topic string, handler func(message []byte) error) error {
	c, err := mq.consumer.Consume(func(msg jetstream.Msg) {
		meta, _ := msg.Metadata()
		err := handler(msg.Data())
		if err != nil {
			if errors.Is(err, ErrPermanent) {
				logger.Info("Permanent error on message", "meta", meta)
				msg.Term()
				return
			}

			logger.Error("Error handling message", "err", err)
			if !mq.useBackoffRetry {
				// msg.Nak() retries immediately, so don't use it with backoff
				msg.Nak()
			}
			return
		}

		if err := msg.Ack(); err != nil {
			logger.Error("Error acknowledging message", "err", err)
		}
	})
	mq.consumerContext = c
	return err
}

func (mq *msgQueue) Close() {
	if mq.consumerContext != nil {
		mq.consumerContext.Stop()
	}
}
