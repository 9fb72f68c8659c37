package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var (
	errNacked = errors.New("delivery nacked")

	ErrMessageLimit = errors.New("upload limit exceeds the largest kafka request")
)

// envelopeBytes covers the task's JSON fields and the record framing around
// the encoded content.
const envelopeBytes = 64 << 10

// KafkaMessageLimit is the producer message size needed to carry a file of
// maxPayload bytes. Content travels base64-encoded inside the JSON task.
// Brokers must accept messages of this size too (message.max.bytes on the
// broker or max.message.bytes on the topic).
func KafkaMessageLimit(maxPayload int64) int {
	return int(4*((maxPayload+2)/3)) + envelopeBytes
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer sizes the producer so a file of maxPayload bytes always
// fits in one message. It refuses limits that cannot fit in a single request.
func NewKafkaProducer(brokers []string, topic string, maxPayload int64) (*KafkaProducer, error) {
	limit := KafkaMessageLimit(maxPayload)
	if limit >= int(sarama.MaxRequestSize) {
		return nil, fmt.Errorf("%w: %d byte uploads need %d byte messages, max %d",
			ErrMessageLimit, maxPayload, limit, sarama.MaxRequestSize)
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.MaxMessageBytes = limit

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{producer: p, topic: topic}, nil
}

func (p *KafkaProducer) Enqueue(ctx context.Context, task *Task) error {
	data, err := task.Encode()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(task.JobID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

// KafkaConsumer adapts a consumer group to the pull-style Consumer interface.
// Each partition claim hands out one message at a time and waits for its
// outcome: Ack marks the offset, Nack ends the session so the group resumes
// from the last committed offset and the message is delivered again.
type KafkaConsumer struct {
	group      sarama.ConsumerGroup
	topic      string
	deliveries chan *kafkaDelivery
	logger     *zap.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewKafkaConsumer(brokers []string, groupID, topic string, logger *zap.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = time.Second

	g, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &KafkaConsumer{
		group:      g,
		topic:      topic,
		deliveries: make(chan *kafkaDelivery),
		logger:     logger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.run(ctx)

	return c, nil
}

func (c *KafkaConsumer) run(ctx context.Context) {
	defer close(c.done)

	h := &consumerHandler{deliveries: c.deliveries, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.Error("Consumer group session ended", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *KafkaConsumer) Receive(ctx context.Context) (Delivery, error) {
	select {
	case d := <-c.deliveries:
		return d, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *KafkaConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.group.Close()
		<-c.done
	})
	return err
}

type consumerHandler struct {
	deliveries chan<- *kafkaDelivery
	logger     *zap.Logger
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			task, err := DecodeTask(msg.Value)
			if err != nil {
				h.logger.Error("Dropping undecodable task",
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
				session.MarkMessage(msg, "")
				continue
			}

			d := &kafkaDelivery{task: task, outcome: make(chan bool, 1)}
			select {
			case h.deliveries <- d:
			case <-session.Context().Done():
				return nil
			}

			select {
			case acked := <-d.outcome:
				if !acked {
					return errNacked
				}
				session.MarkMessage(msg, "")
			case <-session.Context().Done():
				return nil
			}

		case <-session.Context().Done():
			return nil
		}
	}
}

type kafkaDelivery struct {
	task    *Task
	outcome chan bool
	once    sync.Once
}

func (d *kafkaDelivery) Task() *Task { return d.task }

func (d *kafkaDelivery) Ack(context.Context) error {
	d.once.Do(func() { d.outcome <- true })
	return nil
}

func (d *kafkaDelivery) Nack(context.Context) error {
	d.once.Do(func() { d.outcome <- false })
	return nil
}
