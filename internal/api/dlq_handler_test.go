package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockDeadLetters implements queue.DeadLetters.
type mockDeadLetters struct {
	depth      int64
	requeueErr error
	depthErr   error
	asked      int
}

func (m *mockDeadLetters) Requeue(_ context.Context, max int) (int, error) {
	m.asked = max
	if m.requeueErr != nil {
		return 0, m.requeueErr
	}
	n := min(int64(max), m.depth)
	m.depth -= n
	return int(n), nil
}

func (m *mockDeadLetters) Depth(context.Context) (int64, error) {
	if m.depthErr != nil {
		return 0, m.depthErr
	}
	return m.depth, nil
}

func TestDLQReprocessHandler(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		depth         int64
		requeueErr    error
		wantStatus    int
		wantAsked     int
		wantRequeued  int
		wantRemaining int64
	}{
		{name: "explicit count", body: `{"count":3}`, depth: 10, wantStatus: http.StatusOK, wantAsked: 3, wantRequeued: 3, wantRemaining: 7},
		{name: "empty body uses default", body: ``, depth: 150, wantStatus: http.StatusOK, wantAsked: 100, wantRequeued: 100, wantRemaining: 50},
		{name: "fewer dead than asked", body: `{"count":50}`, depth: 2, wantStatus: http.StatusOK, wantAsked: 50, wantRequeued: 2},
		{name: "invalid json", body: `not json`, wantStatus: http.StatusBadRequest},
		{name: "zero count", body: `{"count":0}`, wantStatus: http.StatusBadRequest},
		{name: "count too large", body: `{"count":5000}`, wantStatus: http.StatusBadRequest},
		{name: "backend error", body: `{"count":5}`, requeueErr: errors.New("redis down"), wantStatus: http.StatusInternalServerError, wantAsked: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dlq := &mockDeadLetters{depth: tt.depth, requeueErr: tt.requeueErr}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/dlq/reprocess", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			DLQReprocessHandler(dlq).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d; body: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if dlq.asked != tt.wantAsked {
				t.Errorf("expected requeue of %d, got %d", tt.wantAsked, dlq.asked)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp dlqReprocessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Requeued != tt.wantRequeued || resp.Remaining != tt.wantRemaining {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestDLQDepthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	rec := httptest.NewRecorder()

	DLQDepthHandler(&mockDeadLetters{depth: 42}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["depth"] != 42 {
		t.Errorf("expected depth 42, got %d", resp["depth"])
	}
}

func TestDLQDepthHandler_BackendError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	rec := httptest.NewRecorder()

	DLQDepthHandler(&mockDeadLetters{depthErr: errors.New("redis down")}).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}
