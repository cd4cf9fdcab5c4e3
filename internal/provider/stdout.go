package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stdout implements the Provider interface by writing payloads to standard output.
// Intended for development and debugging; messages are never actually delivered.
type Stdout struct {
	writer io.Writer
}

// NewStdout creates a Stdout provider that prints payloads to os.Stdout.
func NewStdout(_ Config) *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) GetName() string { return "stdout" }

// Send prints the payload details to stdout and returns a successful result.
func (s *Stdout) Send(_ context.Context, msg *Payload) (*DeliveryResult, error) {
	var b strings.Builder
	b.WriteString("--- stdout provider: message ---\n")
	fmt.Fprintf(&b, "Template: %s\n", msg.TemplateID)
	fmt.Fprintf(&b, "From:     %s\n", msg.From)
	fmt.Fprintf(&b, "To:       %s\n", msg.To)
	if msg.MediaAttachment != nil {
		fmt.Fprintf(&b, "Media:    %s %s\n", msg.MediaAttachment.Type, msg.MediaAttachment.URL)
	}
	vars, err := json.Marshal(msg.Message)
	if err != nil {
		return nil, fmt.Errorf("stdout: marshal message: %w", err)
	}
	fmt.Fprintf(&b, "Message:  %s\n", vars)
	b.WriteString("--- end ---\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + uuid.NewString(),
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck always returns nil since stdout is always available.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
