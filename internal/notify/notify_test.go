package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
	"github.com/sungwon/wa-dispatch/internal/transform"
)

const subjectID = "64b7f0c2a1b2c3d4e5f60718"

var fixedNow = time.Date(2026, 10, 2, 8, 30, 0, 0, time.UTC)

func TestBuildCallback(t *testing.T) {
	meta := transform.Metadata{Timestamp: "2026-10-01T10:00:00Z", MessageID: "we-1"}

	tests := []struct {
		name     string
		he       *dispatch.HardError
		wantCode int
		wantMsg  string
	}{
		{
			name:     "template not found keeps own message",
			he:       &dispatch.HardError{Kind: dispatch.KindTemplateNotFound, Message: "Template not found in collection", Metadata: meta},
			wantCode: 2023,
			wantMsg:  "Template not found in collection",
		},
		{
			name:     "unauthorized",
			he:       &dispatch.HardError{Kind: dispatch.KindUnauthorized, Message: "User not found", Metadata: meta},
			wantCode: 2005,
			wantMsg:  "Authorization failure - User not found",
		},
		{
			name:     "insufficient balance",
			he:       &dispatch.HardError{Kind: dispatch.KindInsufficientBalance, Message: "x", Metadata: meta},
			wantCode: 2000,
			wantMsg:  "Insufficient credit balance",
		},
		{
			name:     "internal error keeps own message",
			he:       &dispatch.HardError{Kind: dispatch.KindInternalError, Message: "Carousel cards are absent. Please add carousel cards.", Metadata: meta},
			wantCode: 2019,
			wantMsg:  "Carousel cards are absent. Please add carousel cards.",
		},
		{
			name:     "internal error without message",
			he:       &dispatch.HardError{Kind: dispatch.KindInternalError, Metadata: meta},
			wantCode: 2019,
			wantMsg:  "The message format is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := BuildCallback(tt.he, fixedNow)
			if cb.Version != "1.0" || cb.Status != "whatsapp_rejected" {
				t.Errorf("envelope = %+v", cb)
			}
			if cb.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", cb.StatusCode, tt.wantCode)
			}
			if cb.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", cb.Message, tt.wantMsg)
			}
			if cb.Timestamp != "2026-10-01T10:00:00Z" {
				t.Errorf("Timestamp = %q", cb.Timestamp)
			}
			if cb.MessageID == nil || *cb.MessageID != "we-1" {
				t.Errorf("MessageID = %v", cb.MessageID)
			}
		})
	}
}

func TestBuildCallback_NoMetadata(t *testing.T) {
	cb := BuildCallback(&dispatch.HardError{Kind: dispatch.KindInternalError, Message: "decode"}, fixedNow)
	if cb.Timestamp != "2026-10-02T08:30:00Z" {
		t.Errorf("Timestamp = %q, want current time", cb.Timestamp)
	}
	if cb.MessageID != nil {
		t.Errorf("MessageID = %v, want nil", *cb.MessageID)
	}

	data, err := json.Marshal(cb)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw["messageId"]; !ok || v != nil {
		t.Errorf("messageId should be present as null, got %v (%v)", v, ok)
	}
}

// callbackServer captures posted callbacks.
type callbackServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []Callback
	auth   []string
	status int
}

func newCallbackServer(t *testing.T, status int) *callbackServer {
	cs := &callbackServer{status: status}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cb Callback
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			t.Errorf("decode callback: %v", err)
		}
		cs.mu.Lock()
		cs.bodies = append(cs.bodies, cb)
		cs.auth = append(cs.auth, r.Header.Get("Authorization"))
		cs.mu.Unlock()
		w.WriteHeader(cs.status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *callbackServer) received() ([]Callback, []string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]Callback(nil), cs.bodies...), append([]string(nil), cs.auth...)
}

func newNotifier(store *storage.Memory, defaultEndpoint string) *Notifier {
	n := New(store, storage.DefaultResolver(), provider.NewHTTPClient(5*time.Second),
		Config{DefaultEndpoint: defaultEndpoint, Timeout: 2 * time.Second}, zerolog.Nop())
	n.now = func() time.Time { return fixedNow }
	return n
}

func TestNotify_SubjectEndpointWithToken(t *testing.T) {
	cs := newCallbackServer(t, http.StatusOK)
	fallback := newCallbackServer(t, http.StatusOK)

	store := storage.NewMemory(storage.DefaultResolver())
	store.PutUser("acme", storage.User{
		ID:       subjectID,
		Callback: storage.CallbackConfig{Endpoint: cs.URL, AuthToken: "tok-1"},
	})
	n := newNotifier(store, fallback.URL)

	item := queue.NewItem("acme", subjectID, nil)
	err := n.Notify(context.Background(), item, &dispatch.HardError{Kind: dispatch.KindTemplateNotFound, Message: "Template not found in collection"})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	bodies, auth := cs.received()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(bodies))
	}
	if bodies[0].StatusCode != 2023 {
		t.Errorf("StatusCode = %d", bodies[0].StatusCode)
	}
	if auth[0] != "Bearer tok-1" {
		t.Errorf("Authorization = %q", auth[0])
	}
	if fb, _ := fallback.received(); len(fb) != 0 {
		t.Error("default endpoint should not be used")
	}
}

func TestNotify_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		user    *storage.User
	}{
		{name: "invalid subject id", subject: "short"},
		{name: "user missing", subject: subjectID},
		{name: "user without callback", subject: subjectID, user: &storage.User{ID: subjectID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := newCallbackServer(t, http.StatusAccepted)
			store := storage.NewMemory(storage.DefaultResolver())
			if tt.user != nil {
				store.PutUser("acme", *tt.user)
			}
			n := newNotifier(store, fallback.URL)

			err := n.Notify(context.Background(), queue.NewItem("acme", tt.subject, nil),
				&dispatch.HardError{Kind: dispatch.KindUnauthorized, Message: "User not found"})
			if err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			bodies, auth := fallback.received()
			if len(bodies) != 1 || bodies[0].StatusCode != 2005 {
				t.Fatalf("fallback callbacks = %+v", bodies)
			}
			if auth[0] != "" {
				t.Errorf("no token expected, got %q", auth[0])
			}
		})
	}
}

func TestNotify_NoEndpoint(t *testing.T) {
	n := newNotifier(storage.NewMemory(storage.DefaultResolver()), "")
	err := n.Notify(context.Background(), queue.NewItem("acme", subjectID, nil),
		&dispatch.HardError{Kind: dispatch.KindUnauthorized})
	if !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("error = %v, want ErrNoEndpoint", err)
	}
}

func TestNotify_EndpointFailureIsNotRetried(t *testing.T) {
	cs := newCallbackServer(t, http.StatusInternalServerError)
	n := newNotifier(storage.NewMemory(storage.DefaultResolver()), cs.URL)

	err := n.Notify(context.Background(), queue.NewItem("acme", subjectID, nil),
		&dispatch.HardError{Kind: dispatch.KindInternalError, Message: "boom"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if bodies, _ := cs.received(); len(bodies) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(bodies))
	}
}
