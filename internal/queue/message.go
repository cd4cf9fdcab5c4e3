package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Item is a pending send request. The ID is assigned once at ingest and is
// carried unchanged through every redelivery.
type Item struct {
	ID          string          `json:"id"`
	Tenant      string          `json:"tenant"`
	SubjectID   string          `json:"subjectId"`
	Data        json.RawMessage `json:"data"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// NewItem creates an Item with a generated ID and the current time.
func NewItem(tenant, subjectID string, data json.RawMessage) *Item {
	return &Item{
		ID:          uuid.New().String(),
		Tenant:      tenant,
		SubjectID:   subjectID,
		Data:        data,
		SubmittedAt: time.Now().UTC(),
	}
}

// Delivery is a leased item. Handle identifies the lease to the backend.
// Item is nil when the raw payload could not be decoded; such deliveries
// should be acknowledged and dropped.
type Delivery struct {
	Handle string
	Item   *Item
	Raw    string
	Err    error
}

func encodeItem(item *Item) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshal item: %w", err)
	}
	return string(data), nil
}

func newDelivery(handle, raw string) *Delivery {
	d := &Delivery{Handle: handle, Raw: raw}
	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		d.Err = fmt.Errorf("unmarshal item: %w", err)
		return d
	}
	d.Item = &item
	return d
}

func leasedKey(name string) string   { return name + ":leased" }
func inflightKey(name string) string { return name + ":inflight" }
func countsKey(name string) string   { return name + ":redeliveries" }
func deadKey(name string) string     { return name + ":dead" }
