package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/supervisor"
)

func TestTasksHandler(t *testing.T) {
	sup := supervisor.New(context.Background(), zerolog.Nop())
	started := make(chan struct{})
	sup.GoRestart("worker-0", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})
	<-started
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	}()

	rec := httptest.NewRecorder()
	TasksHandler(sup).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Tasks []supervisor.TaskStats `json:"tasks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Name != "worker-0" || resp.Tasks[0].Starts != 1 {
		t.Errorf("tasks = %+v", resp.Tasks)
	}
}
