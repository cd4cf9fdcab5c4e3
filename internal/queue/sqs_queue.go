package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// sqsMaxBatch is the most messages a single ReceiveMessage call returns.
const sqsMaxBatch = 10

// SQSQueue is a Queue backed by AWS SQS. The visibility timeout is the
// lease; dead-lettering is delegated to the queue's redrive policy.
type SQSQueue struct {
	client     sqsAPI
	queueURL   string
	dlqURL     string
	waitTime   int32
	visTimeout int32
	log        zerolog.Logger
}

// NewSQSQueue creates an SQSQueue on the given client.
func NewSQSQueue(client sqsAPI, cfg Config, log zerolog.Logger) *SQSQueue {
	visTimeout := cfg.SQSVisTimeout
	if visTimeout <= 0 {
		visTimeout = int32(cfg.LeaseTimeout.Seconds())
	}
	if visTimeout <= 0 {
		visTimeout = DefaultConfig().SQSVisTimeout
	}
	return &SQSQueue{
		client:     client,
		queueURL:   cfg.SQSQueueURL,
		dlqURL:     cfg.SQSDLQueueURL,
		waitTime:   cfg.SQSWaitTime,
		visTimeout: visTimeout,
		log:        log,
	}
}

// Enqueue appends the item to the primary queue.
func (q *SQSQueue) Enqueue(ctx context.Context, item *Item) error {
	raw, err := encodeItem(item)
	if err != nil {
		return err
	}
	if _, err := q.client.SendMessage(ctx, &sqsSendInput{QueueURL: q.queueURL, MessageBody: raw, Tenant: item.Tenant}); err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	MessagesEnqueuedTotal.Inc()
	return nil
}

// DequeueBatch receives up to max messages. Only the first receive waits
// for messages; later ones stop as soon as the queue looks empty.
func (q *SQSQueue) DequeueBatch(ctx context.Context, max int) ([]*Delivery, error) {
	deliveries := make([]*Delivery, 0, max)
	wait := q.waitTime

	for len(deliveries) < max {
		n := min(sqsMaxBatch, max-len(deliveries))
		out, err := q.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            q.queueURL,
			MaxNumberOfMessages: int32(n),
			WaitTimeSeconds:     wait,
			VisibilityTimeout:   q.visTimeout,
		})
		if err != nil {
			if len(deliveries) > 0 {
				q.log.Warn().Err(err).Int("received", len(deliveries)).Msg("sqs receive failed mid-batch")
				break
			}
			return nil, fmt.Errorf("sqs receive message: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}
		for _, m := range out.Messages {
			deliveries = append(deliveries, newDelivery(m.ReceiptHandle, m.Body))
		}
		wait = 0
	}

	MessagesLeasedTotal.Add(float64(len(deliveries)))
	return deliveries, nil
}

// Ack deletes each delivered message by receipt handle.
func (q *SQSQueue) Ack(ctx context.Context, deliveries []*Delivery) error {
	var errs []error
	for _, d := range deliveries {
		if err := q.client.DeleteMessage(ctx, &sqsDeleteInput{QueueURL: q.queueURL, ReceiptHandle: d.Handle}); err != nil {
			errs = append(errs, err)
			continue
		}
		MessagesAckedTotal.Inc()
	}
	if len(errs) > 0 {
		return fmt.Errorf("sqs delete %d of %d messages: %w", len(errs), len(deliveries), errors.Join(errs...))
	}
	return nil
}

// Requeue moves up to max messages from the dead letter queue back to the
// primary queue. A message is deleted from the DLQ only after it was sent.
func (q *SQSQueue) Requeue(ctx context.Context, max int) (int, error) {
	if q.dlqURL == "" {
		return 0, errors.New("sqs dead letter queue url is not configured")
	}

	moved := 0
	for moved < max {
		out, err := q.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            q.dlqURL,
			MaxNumberOfMessages: int32(min(sqsMaxBatch, max-moved)),
			VisibilityTimeout:   30,
		})
		if err != nil {
			return moved, fmt.Errorf("sqs receive from dlq: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}
		for _, m := range out.Messages {
			if _, err := q.client.SendMessage(ctx, &sqsSendInput{QueueURL: q.queueURL, MessageBody: m.Body}); err != nil {
				return moved, fmt.Errorf("re-enqueue dlq message %s: %w", m.MessageID, err)
			}
			if err := q.client.DeleteMessage(ctx, &sqsDeleteInput{QueueURL: q.dlqURL, ReceiptHandle: m.ReceiptHandle}); err != nil {
				return moved, fmt.Errorf("delete dlq message %s: %w", m.MessageID, err)
			}
			moved++
		}
	}
	return moved, nil
}

// Depth returns the approximate number of messages in the dead letter queue.
func (q *SQSQueue) Depth(ctx context.Context) (int64, error) {
	if q.dlqURL == "" {
		return 0, nil
	}
	return q.client.ApproximateDepth(ctx, q.dlqURL)
}

func (q *SQSQueue) Ping(ctx context.Context) error {
	_, err := q.client.ApproximateDepth(ctx, q.queueURL)
	return err
}

func (q *SQSQueue) Close() error { return nil }
