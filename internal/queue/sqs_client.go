package queue

import (
	"context"
	"fmt"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the part of SQS the queue uses. Tests replace it with an
// in-memory fake.
type sqsAPI interface {
	SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error)
	ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error)
	DeleteMessage(ctx context.Context, input *sqsDeleteInput) error
	ApproximateDepth(ctx context.Context, queueURL string) (int64, error)
}

// sqsSendInput carries one encoded queue item. Tenant, when set, is attached
// as a message attribute so items can be told apart in the SQS console.
type sqsSendInput struct {
	QueueURL    string
	MessageBody string
	Tenant      string
}

type sqsSendOutput struct {
	MessageID string
}

// sqsReceiveInput leases up to MaxNumberOfMessages items for
// VisibilityTimeout seconds.
type sqsReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages int32
	WaitTimeSeconds     int32
	VisibilityTimeout   int32
}

type sqsReceiveOutput struct {
	Messages []sqsReceivedMessage
}

// sqsReceivedMessage is one leased item. ReceiptHandle is the ack handle.
type sqsReceivedMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

type sqsDeleteInput struct {
	QueueURL      string
	ReceiptHandle string
}

// awsSQSClient implements sqsAPI on the AWS SDK.
type awsSQSClient struct {
	client *sqs.Client
}

func newAWSSQSClient(ctx context.Context, region string) (*awsSQSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &awsSQSClient{client: sqs.NewFromConfig(cfg)}, nil
}

func (c *awsSQSClient) SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	in := &sqs.SendMessageInput{
		QueueUrl:    &input.QueueURL,
		MessageBody: &input.MessageBody,
	}
	if input.Tenant != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			"tenant": {DataType: strPtr("String"), StringValue: &input.Tenant},
		}
	}
	out, err := c.client.SendMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	return &sqsSendOutput{MessageID: derefString(out.MessageId)}, nil
}

// ReceiveMessage leases messages; WaitTimeSeconds > 0 long-polls.
func (c *awsSQSClient) ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &input.QueueURL,
		MaxNumberOfMessages: input.MaxNumberOfMessages,
		WaitTimeSeconds:     input.WaitTimeSeconds,
		VisibilityTimeout:   input.VisibilityTimeout,
	})
	if err != nil {
		return nil, err
	}

	messages := make([]sqsReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, sqsReceivedMessage{
			MessageID:     derefString(m.MessageId),
			ReceiptHandle: derefString(m.ReceiptHandle),
			Body:          derefString(m.Body),
		})
	}
	return &sqsReceiveOutput{Messages: messages}, nil
}

func (c *awsSQSClient) DeleteMessage(ctx context.Context, input *sqsDeleteInput) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &input.QueueURL,
		ReceiptHandle: &input.ReceiptHandle,
	})
	return err
}

// ApproximateDepth reads the ApproximateNumberOfMessages attribute of a queue.
func (c *awsSQSClient) ApproximateDepth(ctx context.Context, queueURL string) (int64, error) {
	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &queueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, err
	}
	raw := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse queue depth %q: %w", raw, err)
	}
	return n, nil
}

func strPtr(s string) *string { return &s }

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
