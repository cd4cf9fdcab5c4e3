package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/notify"
	"github.com/sungwon/wa-dispatch/internal/pipeline"
	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
	"github.com/sungwon/wa-dispatch/internal/writer"
)

const (
	tenant    = "acme"
	subjectID = "64b7f0c2a1b2c3d4e5f60718"
)

type acceptingProvider struct{}

func (acceptingProvider) Send(context.Context, *provider.Payload) (*provider.DeliveryResult, error) {
	return &provider.DeliveryResult{ProviderMessageID: "airtel-1", Status: provider.StatusSent}, nil
}
func (acceptingProvider) GetName() string                   { return "accepting" }
func (acceptingProvider) HealthCheck(context.Context) error { return nil }

type callbackSink struct {
	mu        sync.Mutex
	callbacks []notify.Callback
}

func (s *callbackSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var cb notify.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *callbackSink) received() []notify.Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Callback(nil), s.callbacks...)
}

func request(templateName, to string) json.RawMessage {
	return json.RawMessage(`{"version":"1.0","metadata":{"timestamp":"2026-10-01T10:00:00Z","messageId":"we-` + to + `"},` +
		`"whatsAppData":{"toNumber":"` + to + `","templateData":{"templateName":"` + templateName +
		`","templateVariables":["Asha"],"type":"TEXT"}}}`)
}

func TestPipeline_EndToEnd(t *testing.T) {
	sink := &callbackSink{}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	names := storage.DefaultResolver()
	store := storage.NewMemory(names)
	store.PutTemplate(tenant, subjectID, storage.Template{
		Name: "order_update", TemplateID: "tpl-9", Status: "APPROVED", Type: "UTILITY", Message: "Hi {{1}}",
	})
	store.PutTemplate(tenant, subjectID, storage.Template{
		Name: "promo", TemplateID: "tpl-10", Status: "PAUSED", Type: "MARKETING", Message: "Sale {{1}}",
	})
	store.PutUser(tenant, storage.User{
		ID: subjectID, Balance: 5, BusinessWhatsappNumber: "918000000000",
		Callback: storage.CallbackConfig{Endpoint: srv.URL, AuthToken: "tok"},
	})
	store.PutPrices(tenant, subjectID, "91", map[string]float64{"utility": 0.2, "marketing": 0.8})

	q := queue.NewMemoryQueue()
	ctx := context.Background()
	for _, it := range []*queue.Item{
		queue.NewItem(tenant, subjectID, request("order_update", "919800000001")),
		queue.NewItem(tenant, subjectID, request("promo", "919800000002")),
		queue.NewItem(tenant, subjectID, request("missing", "919800000003")),
		queue.NewItem(tenant, "not-an-object-id", request("order_update", "919800000004")),
	} {
		if err := q.Enqueue(ctx, it); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	log := zerolog.Nop()
	proc := dispatch.New(store, names, acceptingProvider{}, dispatch.Config{DialCode: "91", DeliveryTimeout: time.Second})
	n := notify.New(store, names, provider.NewHTTPClient(time.Second), notify.Config{DefaultEndpoint: srv.URL}, log)
	pool := pipeline.New(q, proc, writer.New(store, names, log), n, nil, pipeline.Config{BatchSize: 10}, log)

	report, err := pool.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Delivered != 1 || report.SoftFailed != 1 || report.Rejected != 2 || report.Acked != 4 {
		t.Errorf("report = %+v", report)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}

	logs := store.Logs(tenant, subjectID)
	if len(logs) != 2 {
		t.Fatalf("log entries = %d, want 2", len(logs))
	}
	statuses := map[storage.LogStatus]int{}
	for _, e := range logs {
		statuses[e.Status]++
	}
	if statuses[storage.LogStatusSent] != 1 || statuses[storage.LogStatusFailed] != 1 {
		t.Errorf("statuses = %v", statuses)
	}

	if _, ok := store.Session(tenant, subjectID, "919800000001"); !ok {
		t.Error("session for delivered contact missing")
	}
	if _, ok := store.Session(tenant, subjectID, "919800000002"); !ok {
		t.Error("session for paused-template contact missing")
	}
	if _, ok := store.Session(tenant, subjectID, "919800000003"); ok {
		t.Error("rejected item must not create a session")
	}

	codes := map[int]int{}
	for _, cb := range sink.received() {
		codes[cb.StatusCode]++
	}
	if codes[2023] != 1 || codes[2005] != 1 {
		t.Errorf("callback codes = %v", codes)
	}
}
