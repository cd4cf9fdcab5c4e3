package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Airtel sends template messages through the Airtel IQ WhatsApp API.
type Airtel struct {
	endpoint string
	auth     string
	client   HTTPClient
}

// NewAirtel creates an Airtel adapter.
func NewAirtel(cfg Config, client HTTPClient) *Airtel {
	cred := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &Airtel{
		endpoint: cfg.Endpoint,
		auth:     "Basic " + cred,
		client:   client,
	}
}

func (a *Airtel) GetName() string { return "airtel" }

type airtelResponse struct {
	MessageRequestID string `json:"messageRequestId"`
	Status           string `json:"status"`
}

// Send posts the payload and returns the API's message request id.
func (a *Airtel) Send(ctx context.Context, msg *Payload) (*DeliveryResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("airtel: marshal payload: %w", err)
	}

	resp, err := a.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    a.endpoint,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": a.auth,
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("airtel: request failed: %w", err)
	}

	if pe := ClassifyHTTPError(a.GetName(), resp.StatusCode, resp.Body); pe != nil {
		return nil, pe
	}

	var ar airtelResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		return nil, fmt.Errorf("airtel: decode response: %w", err)
	}

	result := &DeliveryResult{
		ProviderMessageID: ar.MessageRequestID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}
	if ar.Status != "" {
		result.Metadata = map[string]string{"status": ar.Status}
	}
	return result, nil
}

// HealthCheck verifies that credentials and an endpoint are configured.
func (a *Airtel) HealthCheck(_ context.Context) error {
	if a.endpoint == "" {
		return errors.New("airtel: endpoint not configured")
	}
	return nil
}
