package dispatch

import (
	"github.com/sungwon/wa-dispatch/internal/storage"
	"github.com/sungwon/wa-dispatch/internal/transform"
)

// Kind classifies a failed outcome.
type Kind string

// Hard error kinds. The request cannot be attributed and nothing is stored.
const (
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindTemplateNotFound Kind = "TEMPLATE_NOT_FOUND"
	KindInternalError    Kind = "INTERNAL_ERROR"
)

// Soft failure kinds. The attempt is recorded as failed.
const (
	KindTemplatePaused      Kind = "TEMPLATE_PAUSED"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindDeliveryFailed      Kind = "DELIVERY_FAILED"
	KindDeliveryTimeout     Kind = "DELIVERY_TIMEOUT"
)

// Outcome is the result of processing one queue item. It is one of
// *HardError, *SoftFailure or *Delivered.
type Outcome interface {
	outcome()
}

// HardError is routed to the error notifier and never written to storage.
type HardError struct {
	Kind    Kind
	Message string
	// Metadata is the submitter's request metadata, empty when the request
	// data could not be decoded.
	Metadata transform.Metadata
}

// SoftFailure is a recorded failed attempt.
type SoftFailure struct {
	Kind     Kind
	Message  string
	Mutation *storage.Mutation
}

// Delivered is a message accepted by the provider.
type Delivered struct {
	ProviderMessageID string
	Mutation          *storage.Mutation
}

func (*HardError) outcome()   {}
func (*SoftFailure) outcome() {}
func (*Delivered) outcome()   {}

func (e *HardError) Error() string { return string(e.Kind) + ": " + e.Message }

// Labels returns the metric and log labels of an outcome.
func Labels(o Outcome) (outcome, kind string) {
	switch o := o.(type) {
	case *HardError:
		return "hard_error", string(o.Kind)
	case *SoftFailure:
		return "soft_failure", string(o.Kind)
	case *Delivered:
		return "delivered", ""
	default:
		return "unknown", ""
	}
}
