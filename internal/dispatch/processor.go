// Package dispatch turns one queue item into an outcome: it authorizes the
// subject, renders the template, checks the balance and calls the provider.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/metrics"
	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
	"github.com/sungwon/wa-dispatch/internal/transform"
)

// Messages and titles recorded for the fixed outcomes.
const (
	MsgUserNotFound     = "User not found"
	MsgTemplateNotFound = "Template not found in collection"

	TitlePaused              = "Template is Paused!"
	TitleInsufficientBalance = "Message failed due to insufficient balance!"
	TitleUndelivered         = "Message undelivered!"
	TitleTimeout             = "Message delivery timed out!"

	sentBy  = "system"
	erpType = "webengage"
)

// Config tunes a Processor.
type Config struct {
	// DialCode selects the pricing row used for the balance check.
	DialCode string `mapstructure:"dial_code"`
	// DeliveryTimeout bounds one provider call. Zero disables the bound.
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

// Processor runs the dispatch steps for single items. It holds no per-item
// state and is safe for concurrent use.
type Processor struct {
	dir      storage.Directory
	names    storage.Resolver
	provider provider.Provider
	cfg      Config
	now      func() time.Time
}

// New creates a Processor.
func New(dir storage.Directory, names storage.Resolver, p provider.Provider, cfg Config) *Processor {
	if cfg.DialCode == "" {
		cfg.DialCode = "91"
	}
	return &Processor{
		dir:      dir,
		names:    names,
		provider: p,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// authContext is everything looked up for one item.
type authContext struct {
	ns       storage.Namespace
	template *storage.Template
	user     *storage.User
}

// Process runs one item to an outcome. It never returns nil.
func (p *Processor) Process(ctx context.Context, item *queue.Item) Outcome {
	out := p.process(ctx, item)

	outcome, kind := Labels(out)
	metrics.DispatchOutcomesTotal.WithLabelValues(outcome, kind).Inc()

	log := logger.FromContext(ctx)
	switch o := out.(type) {
	case *HardError:
		log.Warn().Str("kind", string(o.Kind)).Str("reason", o.Message).Msg("item rejected")
	case *SoftFailure:
		log.Info().Str("kind", string(o.Kind)).Str("reason", o.Message).Msg("attempt recorded as failed")
	case *Delivered:
		log.Debug().Str("message_request_id", o.ProviderMessageID).Msg("message delivered")
	}
	return out
}

func (p *Processor) process(ctx context.Context, item *queue.Item) Outcome {
	var req transform.Request
	decodeErr := json.Unmarshal(item.Data, &req)
	meta := req.Metadata

	if !storage.ValidSubjectID(item.SubjectID) {
		return &HardError{Kind: KindUnauthorized, Message: MsgUserNotFound, Metadata: meta}
	}
	if decodeErr != nil {
		return &HardError{Kind: KindInternalError, Message: fmt.Sprintf("decode request data: %v", decodeErr)}
	}

	ac, herr := p.authorize(ctx, item, &req)
	if herr != nil {
		return herr
	}

	if strings.EqualFold(ac.template.Status, "paused") {
		return &SoftFailure{
			Kind:     KindTemplatePaused,
			Message:  TitlePaused,
			Mutation: p.mutation(item, &req, attemptChat(ac.template, &req), "", &storage.LogError{Title: TitlePaused}, 0),
		}
	}

	category := strings.ToLower(ac.template.Type)
	price, err := p.dir.UnitPrice(ctx, ac.ns, item.SubjectID, p.cfg.DialCode, category)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &HardError{
				Kind:     KindInternalError,
				Message:  fmt.Sprintf("pricing for dial code %s is not configured", p.cfg.DialCode),
				Metadata: meta,
			}
		}
		return &HardError{Kind: KindInternalError, Message: err.Error(), Metadata: meta}
	}
	// An unpriced category is not charged.
	if price != nil && ac.user.Balance < *price {
		return &SoftFailure{
			Kind:     KindInsufficientBalance,
			Message:  TitleInsufficientBalance,
			Mutation: p.mutation(item, &req, attemptChat(ac.template, &req), "", &storage.LogError{Title: TitleInsufficientBalance}, 0),
		}
	}

	payload, chat, err := transform.Build(ac.template, &req, ac.user)
	if err != nil {
		return &HardError{Kind: KindInternalError, Message: err.Error(), Metadata: meta}
	}

	return p.deliver(ctx, item, &req, chat, payload)
}

// attemptChat renders the chat record of an attempt that is recorded without
// being sent. A request that cannot be rendered falls back to the plain
// template text.
func attemptChat(tpl *storage.Template, req *transform.Request) *storage.ChatRecord {
	if chat, err := transform.ChatMessage(tpl, req); err == nil {
		return chat
	}
	return transform.PlainChatMessage(tpl, req)
}

// authorize looks up the template and the user concurrently. A missing
// template is reported before a missing user.
func (p *Processor) authorize(ctx context.Context, item *queue.Item, req *transform.Request) (*authContext, *HardError) {
	ns := p.names.Namespace(item.Tenant)
	meta := req.Metadata

	var (
		wg      sync.WaitGroup
		tpl     *storage.Template
		user    *storage.User
		tplErr  error
		userErr error
	)
	start := time.Now()
	wg.Add(2)
	go func() {
		defer wg.Done()
		tpl, tplErr = p.dir.Template(ctx, ns, item.SubjectID, req.WhatsAppData.TemplateData.TemplateName)
	}()
	go func() {
		defer wg.Done()
		user, userErr = p.dir.User(ctx, ns, item.SubjectID)
	}()
	wg.Wait()
	metrics.LookupDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(tplErr, storage.ErrNotFound):
		return nil, &HardError{Kind: KindTemplateNotFound, Message: MsgTemplateNotFound, Metadata: meta}
	case tplErr != nil:
		return nil, &HardError{Kind: KindInternalError, Message: tplErr.Error(), Metadata: meta}
	case errors.Is(userErr, storage.ErrNotFound):
		return nil, &HardError{Kind: KindUnauthorized, Message: MsgUserNotFound, Metadata: meta}
	case userErr != nil:
		return nil, &HardError{Kind: KindInternalError, Message: userErr.Error(), Metadata: meta}
	}

	return &authContext{ns: ns, template: tpl, user: user}, nil
}

func (p *Processor) deliver(ctx context.Context, item *queue.Item, req *transform.Request,
	chat *storage.ChatRecord, payload *provider.Payload) Outcome {

	callCtx := ctx
	if p.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.DeliveryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.provider.Send(callCtx, payload)
	dur := time.Since(start)

	if err != nil {
		kind, logErr := classifyDeliveryError(err)
		result := deliveryResultLabel(kind, err)
		metrics.DeliveryDuration.WithLabelValues(p.provider.GetName(), result).Observe(dur.Seconds())
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Str("result", result).Bool("permanent", provider.IsPermanent(err)).Msg("delivery failed")
		return &SoftFailure{
			Kind:     kind,
			Message:  logErr.Title,
			Mutation: p.mutation(item, req, chat, "", logErr, dur),
		}
	}

	metrics.DeliveryDuration.WithLabelValues(p.provider.GetName(), "sent").Observe(dur.Seconds())
	return &Delivered{
		ProviderMessageID: result.ProviderMessageID,
		Mutation:          p.mutation(item, req, chat, result.ProviderMessageID, nil, dur),
	}
}

func classifyDeliveryError(err error) (Kind, *storage.LogError) {
	if provider.IsTimeout(err) {
		return KindDeliveryTimeout, &storage.LogError{Title: TitleTimeout}
	}

	logErr := &storage.LogError{Title: err.Error()}
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		if pe.Message != "" {
			logErr.Title = pe.Message
		}
		logErr.Code = pe.Code
	}
	if logErr.Title == "" {
		logErr.Title = TitleUndelivered
	}
	return KindDeliveryFailed, logErr
}

// deliveryResultLabel separates gateway rejections that a resend cannot fix
// from failures that may pass on a later attempt.
func deliveryResultLabel(k Kind, err error) string {
	switch {
	case k == KindDeliveryTimeout:
		return "timeout"
	case provider.IsPermanent(err):
		return "rejected"
	default:
		return "failed"
	}
}

// mutation builds the session upsert and the log entry for one attempt.
// A nil logErr records a sent message.
func (p *Processor) mutation(item *queue.Item, req *transform.Request, chat *storage.ChatRecord,
	requestID string, logErr *storage.LogError, dur time.Duration) *storage.Mutation {

	now := p.now()
	status := storage.LogStatusSent
	if logErr != nil {
		status = storage.LogStatusFailed
	}

	return &storage.Mutation{
		Tenant:    item.Tenant,
		SubjectID: item.SubjectID,
		SessionUpdate: storage.SessionMutation{
			Filter: storage.SessionFilter{ContactNumber: chat.To},
			Update: storage.SessionUpdate{
				Set: storage.SessionSummary{
					SentBy:          sentBy,
					LastMessage:     chat.Template.Message,
					LastMessageType: chat.Template.HeaderType,
					LastMessageTime: now,
				},
			},
		},
		LiveChatInsert: storage.LogEntry{
			AttemptID:        item.ID,
			Data:             chat,
			SentBy:           sentBy,
			MessageRequestID: requestID,
			MessageID:        req.Metadata.MessageID,
			Timestamp:        req.Metadata.Timestamp,
			Status:           status,
			Error:            logErr,
			ErpType:          erpType,
			DurationMs:       dur.Milliseconds(),
			CreatedAt:        now,
		},
	}
}
