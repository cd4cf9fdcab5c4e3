package provider

import (
	"context"
	"testing"
)

// mockProvider implements Provider for wrapper tests.
type mockProvider struct {
	name  string
	sent  int
	err   error
	msgID string
}

func (m *mockProvider) Send(_ context.Context, _ *Payload) (*DeliveryResult, error) {
	m.sent++
	if m.err != nil {
		return nil, m.err
	}
	return &DeliveryResult{ProviderMessageID: m.msgID, Status: StatusSent}, nil
}

func (m *mockProvider) GetName() string {
	return m.name
}

func (m *mockProvider) HealthCheck(_ context.Context) error {
	return nil
}

// mockHTTPClient records requests and replies with a canned response.
type mockHTTPClient struct {
	resp *HTTPResponse
	err  error
	reqs []*HTTPRequest
}

func (m *mockHTTPClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestNew(t *testing.T) {
	client := &mockHTTPClient{}

	tests := []struct {
		name        string
		cfg         Config
		wantName    string
		wantLimited bool
		wantErr     bool
	}{
		{
			name:     "airtel",
			cfg:      Config{Type: "airtel", Endpoint: "https://api.example.test", Username: "u", Password: "p"},
			wantName: "airtel",
		},
		{
			name:     "stdout",
			cfg:      Config{Type: "stdout"},
			wantName: "stdout",
		},
		{
			name:     "simulate",
			cfg:      Config{Type: "simulate"},
			wantName: "simulate",
		},
		{
			name:        "rate limited airtel keeps inner name",
			cfg:         Config{Type: "airtel", Endpoint: "https://api.example.test", Username: "u", Password: "p", RatePerSec: 20},
			wantName:    "airtel",
			wantLimited: true,
		},
		{
			name:    "invalid config",
			cfg:     Config{Type: "airtel"},
			wantErr: true,
		},
		{
			name:    "empty type",
			cfg:     Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, client)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if p.GetName() != tt.wantName {
				t.Errorf("GetName() = %q, want %q", p.GetName(), tt.wantName)
			}
			_, limited := p.(*RateLimited)
			if limited != tt.wantLimited {
				t.Errorf("rate limited = %v, want %v", limited, tt.wantLimited)
			}
		})
	}
}
