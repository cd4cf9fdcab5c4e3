package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Provider delivers template messages through a WhatsApp business API.
type Provider interface {
	// Send delivers a message and returns the provider's message id.
	Send(ctx context.Context, msg *Payload) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "airtel", "stdout").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Payload is the outbound template send request.
type Payload struct {
	TemplateID      string           `json:"templateId"`
	To              string           `json:"to"`
	From            string           `json:"from"`
	Message         PayloadMessage   `json:"message"`
	MediaAttachment *MediaAttachment `json:"mediaAttachment,omitempty"`
}

// PayloadMessage carries the template parameters. Every list is always
// present, empty when unused.
type PayloadMessage struct {
	HeaderVars   []string          `json:"headerVars"`
	Variables    []string          `json:"variables"`
	Payload      []string          `json:"payload"`
	CarouselCard []json.RawMessage `json:"carouselCard"`
	Suffix       []string          `json:"suffix"`
}

// MediaAttachment is the header media of an IMAGE, VIDEO or DOCUMENT template.
type MediaAttachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus represents the outcome of a delivery.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)
