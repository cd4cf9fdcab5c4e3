package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
)

// ProviderError is a send rejected by the WhatsApp gateway.
type ProviderError struct {
	Provider   string
	StatusCode int
	// Code is the gateway's own error code, recorded with the failed attempt.
	Code    string
	Message string
	// Permanent marks rejections that resending the same message cannot
	// fix, such as an unapproved template or a blocked recipient.
	Permanent bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

// IsPermanent reports whether err is a gateway rejection that a resend
// cannot fix. Transport errors are never permanent.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// IsTimeout reports whether err came from a deadline or a network timeout
// rather than an answer from the provider.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// errorBody is the JSON error shape returned by the messaging API.
type errorBody struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
}

// ClassifyHTTPError turns a non-2xx gateway reply into a ProviderError.
// Client errors other than 408 and 429 are permanent; server errors are
// permanent only when the body names an account or credential problem.
func ClassifyHTTPError(providerName string, statusCode int, body []byte) *ProviderError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	pe := &ProviderError{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			pe.Message = eb.Message
		}
		pe.Code = rawCode(eb.Code)
	}

	switch {
	case statusCode == 408 || statusCode == 429:
	case statusCode >= 500:
		pe.Permanent = accountProblem(pe.Message)
	default:
		pe.Permanent = statusCode >= 400
	}

	return pe
}

// rawCode renders a JSON number or string code as plain text.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var accountProblems = []string{
	"invalid credentials",
	"authentication failed",
	"account suspended",
	"account disabled",
	"unauthorized",
	"waba not found",
}

func accountProblem(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range accountProblems {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
