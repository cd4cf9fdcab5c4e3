package storage

import (
	"encoding/json"
	"time"
)

// Template is a stored WhatsApp message template owned by a subject.
type Template struct {
	Name       string          `json:"name"`
	TemplateID string          `json:"templateId"`
	Status     string          `json:"status"`
	Type       string          `json:"type"`
	Category   string          `json:"category"`
	HeaderType string          `json:"headerType"`
	Header     string          `json:"header"`
	Message    string          `json:"message"`
	Footer     string          `json:"footer"`
	Actions    json.RawMessage `json:"actions,omitempty"`
	SubType    string          `json:"subType"`
	Cards      json.RawMessage `json:"cards,omitempty"`
}

// User is the subject's account record inside a tenant namespace.
type User struct {
	ID                     string         `json:"id"`
	Balance                float64        `json:"balance"`
	BusinessWhatsappNumber string         `json:"businessWhatsappNumber"`
	Callback               CallbackConfig `json:"webEngageConfig"`
}

// CallbackConfig is where rejection callbacks for a subject are posted.
type CallbackConfig struct {
	Endpoint  string `json:"endpoint"`
	AuthToken string `json:"authToken"`
}

// ChatRecord is the human-readable rendering of a sent template, stored
// with each log entry.
type ChatRecord struct {
	To       string       `json:"to"`
	Type     string       `json:"type"`
	Template ChatTemplate `json:"template"`
}

// ChatTemplate is the rendered template body of a ChatRecord.
type ChatTemplate struct {
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Message    string          `json:"message"`
	Header     string          `json:"header,omitempty"`
	HeaderType string          `json:"headerType,omitempty"`
	Footer     string          `json:"footer,omitempty"`
	Actions    json.RawMessage `json:"actions,omitempty"`
	SubType    string          `json:"subType,omitempty"`
	Cards      json.RawMessage `json:"cards,omitempty"`
}

// SessionMutation upserts the conversation summary of one contact.
type SessionMutation struct {
	Filter SessionFilter `json:"filter"`
	Update SessionUpdate `json:"update"`
}

// SessionFilter selects the session row to upsert.
type SessionFilter struct {
	ContactNumber string `json:"contactNumber"`
}

// SessionUpdate separates fields overwritten on every write from fields
// written only when the session is first created.
type SessionUpdate struct {
	Set         SessionSummary  `json:"$set"`
	SetOnInsert BillingCounters `json:"$setOnInsert"`
}

// SessionSummary holds the last-message fields of a session.
type SessionSummary struct {
	SentBy          string    `json:"sentBy"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageType string    `json:"lastMessageType"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	IsBlocked       bool      `json:"isBlocked"`
	Intervene       bool      `json:"intervene"`
}

// BillingCounters are the per-category conversation windows of a session.
type BillingCounters struct {
	Utility        BillingCounter `json:"utility"`
	Marketing      BillingCounter `json:"marketing"`
	Authentication BillingCounter `json:"authentication"`
	Service        BillingCounter `json:"service"`
}

// BillingCounter is one conversation window. The zero value is an unopened window.
type BillingCounter struct {
	ID         *string    `json:"id"`
	Expiration *time.Time `json:"expiration"`
	Cost       float64    `json:"cost"`
}

// LogStatus is the recorded state of a delivery attempt.
type LogStatus string

const (
	LogStatusSent   LogStatus = "sent"
	LogStatusFailed LogStatus = "failed"
)

// LogEntry is an append-only record of a single delivery attempt.
// AttemptID is stable across redeliveries of the same queue item.
type LogEntry struct {
	AttemptID        string      `json:"attemptId"`
	Data             *ChatRecord `json:"data"`
	SentBy           string      `json:"sentBy"`
	MessageRequestID string      `json:"messageRequestId"`
	MessageID        string      `json:"messageId"`
	Timestamp        string      `json:"timestamp"`
	Wamid            string      `json:"wamid"`
	Status           LogStatus   `json:"status"`
	Error            *LogError   `json:"error,omitempty"`
	ErpType          string      `json:"erpType"`
	DurationMs       int64       `json:"durationMs"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// LogError describes why an attempt failed.
type LogError struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

// Mutation is everything one processed item writes to storage.
type Mutation struct {
	Tenant         string          `json:"tenant"`
	SubjectID      string          `json:"subjectId"`
	SessionUpdate  SessionMutation `json:"sessionUpdate"`
	LiveChatInsert LogEntry        `json:"liveChatInsert"`
}
