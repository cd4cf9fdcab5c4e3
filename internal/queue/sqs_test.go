package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

const (
	testQueueURL = "https://sqs.us-east-1.amazonaws.com/123/requests"
	testDLQURL   = "https://sqs.us-east-1.amazonaws.com/123/requests-dlq"
)

// mockSQSClient implements sqsAPI for testing. Messages sent to a URL
// become receivable from it.
type mockSQSClient struct {
	mu         sync.Mutex
	queues     map[string][]sqsReceivedMessage
	sent       []sqsSendInput
	receives   []sqsReceiveInput
	deleted    []sqsDeleteInput
	seq        int
	sendErr    error
	receiveErr error
	deleteErr  error
}

func newMockSQSClient() *mockSQSClient {
	return &mockSQSClient{queues: make(map[string][]sqsReceivedMessage)}
}

func (m *mockSQSClient) SendMessage(_ context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, *input)
	m.seq++
	id := fmt.Sprintf("msg-%d", m.seq)
	m.queues[input.QueueURL] = append(m.queues[input.QueueURL], sqsReceivedMessage{
		MessageID:     id,
		ReceiptHandle: "rh-" + id,
		Body:          input.MessageBody,
	})
	return &sqsSendOutput{MessageID: id}, nil
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receives = append(m.receives, *input)
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	msgs := m.queues[input.QueueURL]
	n := min(int(input.MaxNumberOfMessages), len(msgs))
	out := make([]sqsReceivedMessage, n)
	copy(out, msgs[:n])
	m.queues[input.QueueURL] = msgs[n:]
	return &sqsReceiveOutput{Messages: out}, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, input *sqsDeleteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, *input)
	return nil
}

func (m *mockSQSClient) ApproximateDepth(_ context.Context, queueURL string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[queueURL])), nil
}

func newTestSQSQueue(client *mockSQSClient) *SQSQueue {
	return NewSQSQueue(client, Config{
		SQSQueueURL:   testQueueURL,
		SQSDLQueueURL: testDLQURL,
		SQSWaitTime:   5,
		SQSVisTimeout: 60,
	}, zerolog.Nop())
}

func TestSQSQueue_EnqueueDequeue(t *testing.T) {
	mock := newMockSQSClient()
	q := newTestSQSQueue(mock)
	ctx := context.Background()

	item := NewItem("acme", "64b7f0c2a1d3e4f5a6b7c8d9", json.RawMessage(`{"k":"v"}`))
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if mock.sent[0].Tenant != "acme" {
		t.Errorf("expected tenant attribute acme, got %q", mock.sent[0].Tenant)
	}

	got, err := q.DequeueBatch(ctx, 70)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Item == nil || got[0].Item.ID != item.ID {
		t.Errorf("unexpected delivery: %+v", got[0])
	}
	if got[0].Handle != "rh-msg-1" {
		t.Errorf("expected receipt handle as lease handle, got %q", got[0].Handle)
	}
	if mock.receives[0].VisibilityTimeout != 60 {
		t.Errorf("expected visibility timeout 60, got %d", mock.receives[0].VisibilityTimeout)
	}
}

func TestSQSQueue_DequeueBatchLoopsUpToMax(t *testing.T) {
	mock := newMockSQSClient()
	q := newTestSQSQueue(mock)
	ctx := context.Background()

	for range 25 {
		if err := q.Enqueue(ctx, NewItem("acme", "s", nil)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	got, err := q.DequeueBatch(ctx, 22)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 22 {
		t.Fatalf("expected 22 deliveries, got %d", len(got))
	}

	wantSizes := []int32{10, 10, 2}
	if len(mock.receives) != len(wantSizes) {
		t.Fatalf("expected %d receive calls, got %d", len(wantSizes), len(mock.receives))
	}
	for i, in := range mock.receives {
		if in.MaxNumberOfMessages != wantSizes[i] {
			t.Errorf("call %d: max %d, want %d", i, in.MaxNumberOfMessages, wantSizes[i])
		}
		wantWait := int32(0)
		if i == 0 {
			wantWait = 5
		}
		if in.WaitTimeSeconds != wantWait {
			t.Errorf("call %d: wait %d, want %d", i, in.WaitTimeSeconds, wantWait)
		}
	}
}

func TestSQSQueue_DequeueError(t *testing.T) {
	mock := newMockSQSClient()
	mock.receiveErr = errors.New("throttled")
	q := newTestSQSQueue(mock)

	if _, err := q.DequeueBatch(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQSQueue_AckDeletesByHandle(t *testing.T) {
	mock := newMockSQSClient()
	q := newTestSQSQueue(mock)

	err := q.Ack(context.Background(), []*Delivery{{Handle: "rh-1"}, {Handle: "rh-2"}})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(mock.deleted) != 2 || mock.deleted[1].ReceiptHandle != "rh-2" || mock.deleted[0].QueueURL != testQueueURL {
		t.Errorf("unexpected deletes: %+v", mock.deleted)
	}
}

func TestSQSQueue_AckError(t *testing.T) {
	mock := newMockSQSClient()
	mock.deleteErr = errors.New("gone")
	q := newTestSQSQueue(mock)

	if err := q.Ack(context.Background(), []*Delivery{{Handle: "rh-1"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQSQueue_Requeue(t *testing.T) {
	mock := newMockSQSClient()
	q := newTestSQSQueue(mock)
	ctx := context.Background()

	for i := range 3 {
		_, _ = mock.SendMessage(ctx, &sqsSendInput{QueueURL: testDLQURL, MessageBody: fmt.Sprintf(`{"id":"dead-%d"}`, i)})
	}

	depth, err := q.Depth(ctx)
	if err != nil || depth != 3 {
		t.Fatalf("expected dlq depth 3, got %d, %v", depth, err)
	}

	moved, err := q.Requeue(ctx, 2)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 2 {
		t.Errorf("expected 2 moved, got %d", moved)
	}
	if n := len(mock.queues[testQueueURL]); n != 2 {
		t.Errorf("expected 2 items on primary queue, got %d", n)
	}
	if n := len(mock.queues[testDLQURL]); n != 1 {
		t.Errorf("expected 1 item left on dlq, got %d", n)
	}
	if len(mock.deleted) != 2 || mock.deleted[0].QueueURL != testDLQURL {
		t.Errorf("expected 2 dlq deletes, got %+v", mock.deleted)
	}
}

func TestSQSQueue_RequeueWithoutDLQ(t *testing.T) {
	q := NewSQSQueue(newMockSQSClient(), Config{SQSQueueURL: testQueueURL}, zerolog.Nop())
	if _, err := q.Requeue(context.Background(), 1); err == nil {
		t.Fatal("expected error when no dlq is configured")
	}
}
