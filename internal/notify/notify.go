// Package notify reports rejected requests back to the submitter's
// callback endpoint.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/metrics"
	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
)

// Callback status codes.
const (
	CodeInsufficientBalance = 2000
	CodeUnauthorized        = 2005
	CodeFormatInvalid       = 2019
	CodeTemplateNotFound    = 2023
)

// ErrNoEndpoint is returned when neither the subject nor the process has
// a callback endpoint configured.
var ErrNoEndpoint = errors.New("notify: no callback endpoint configured")

// Callback is the rejection payload posted to the submitter.
type Callback struct {
	Version    string  `json:"version"`
	Status     string  `json:"status"`
	StatusCode int     `json:"statusCode"`
	Message    string  `json:"message"`
	Timestamp  string  `json:"timestamp"`
	MessageID  *string `json:"messageId"`
}

// BuildCallback maps a hard error to the external status code vocabulary.
func BuildCallback(he *dispatch.HardError, now time.Time) Callback {
	cb := Callback{
		Version:    "1.0",
		Status:     "whatsapp_rejected",
		StatusCode: CodeFormatInvalid,
		Message:    he.Message,
		Timestamp:  he.Metadata.Timestamp,
	}
	if cb.Message == "" {
		cb.Message = "The message format is invalid"
	}
	if cb.Timestamp == "" {
		cb.Timestamp = now.UTC().Format(time.RFC3339)
	}
	if id := he.Metadata.MessageID; id != "" {
		cb.MessageID = &id
	}

	switch he.Kind {
	case dispatch.KindTemplateNotFound:
		cb.StatusCode = CodeTemplateNotFound
	case dispatch.KindInsufficientBalance:
		cb.StatusCode = CodeInsufficientBalance
		cb.Message = "Insufficient credit balance"
	case dispatch.KindUnauthorized:
		cb.StatusCode = CodeUnauthorized
		cb.Message = "Authorization failure - User not found"
	}
	return cb
}

// Config holds notifier settings.
type Config struct {
	// DefaultEndpoint is used when the subject has no callback configured.
	DefaultEndpoint string        `mapstructure:"default_endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Notifier posts one callback per hard error. Delivery is best effort:
// failures are logged and counted, never retried.
type Notifier struct {
	dir    storage.Directory
	names  storage.Resolver
	client provider.HTTPClient
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a Notifier.
func New(dir storage.Directory, names storage.Resolver, client provider.HTTPClient, cfg Config, log zerolog.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Notifier{dir: dir, names: names, client: client, cfg: cfg, log: log, now: time.Now}
}

// Notify posts the rejection of item. The returned error is informational;
// callers must not retry.
func (n *Notifier) Notify(ctx context.Context, item *queue.Item, he *dispatch.HardError) error {
	cb := BuildCallback(he, n.now())
	code := strconv.Itoa(cb.StatusCode)
	log := n.log.With().
		Str("item_id", item.ID).
		Str("tenant", item.Tenant).
		Str("subject_id", item.SubjectID).
		Int("status_code", cb.StatusCode).
		Logger()

	endpoint, token := n.resolve(ctx, item)
	if endpoint == "" {
		metrics.NotificationsTotal.WithLabelValues(code, "skipped").Inc()
		log.Warn().Msg("rejection callback skipped: no endpoint configured")
		return ErrNoEndpoint
	}

	if err := n.post(ctx, endpoint, token, cb); err != nil {
		metrics.NotificationsTotal.WithLabelValues(code, "failed").Inc()
		log.Error().Err(err).Str("endpoint", endpoint).Msg("rejection callback failed")
		return err
	}

	metrics.NotificationsTotal.WithLabelValues(code, "sent").Inc()
	log.Info().Str("endpoint", endpoint).Msg("rejection callback sent")
	return nil
}

// resolve returns the subject's callback endpoint and token, falling back to
// the default endpoint when the subject cannot be found.
func (n *Notifier) resolve(ctx context.Context, item *queue.Item) (endpoint, token string) {
	if storage.ValidSubjectID(item.SubjectID) {
		user, err := n.dir.User(ctx, n.names.Namespace(item.Tenant), item.SubjectID)
		if err == nil {
			endpoint, token = user.Callback.Endpoint, user.Callback.AuthToken
		} else if !errors.Is(err, storage.ErrNotFound) {
			n.log.Warn().Err(err).Str("subject_id", item.SubjectID).Msg("callback config lookup failed")
		}
	}
	if endpoint == "" {
		endpoint = n.cfg.DefaultEndpoint
	}
	return endpoint, token
}

func (n *Notifier) post(ctx context.Context, endpoint, token string, cb Callback) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	resp, err := n.client.Do(ctx, &provider.HTTPRequest{
		Method:  "POST",
		URL:     endpoint,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post callback: unexpected status %d", resp.StatusCode)
	}
	return nil
}
