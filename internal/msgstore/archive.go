package msgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/queue"
)

// Rejection is the archived record of a hard-error item.
type Rejection struct {
	ItemID      string          `json:"itemId"`
	Tenant      string          `json:"tenant"`
	SubjectID   string          `json:"subjectId"`
	Kind        string          `json:"kind"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
	SubmittedAt time.Time       `json:"submittedAt"`
	RejectedAt  time.Time       `json:"rejectedAt"`
}

// Archive stores rejections in an ObjectStore, one object per queue item.
type Archive struct {
	store ObjectStore
	now   func() time.Time
}

// NewArchive wraps store. A nil store yields a nil Archive; all methods of a
// nil Archive are no-ops.
func NewArchive(store ObjectStore) *Archive {
	if store == nil {
		return nil
	}
	return &Archive{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the object key of an item's rejection.
func Key(itemID string) string { return itemID + ".json" }

// Save archives the rejection of item. Saving the same item twice overwrites.
func (a *Archive) Save(ctx context.Context, item *queue.Item, he *dispatch.HardError) error {
	if a == nil {
		return nil
	}
	data, err := json.Marshal(Rejection{
		ItemID:      item.ID,
		Tenant:      item.Tenant,
		SubjectID:   item.SubjectID,
		Kind:        string(he.Kind),
		Message:     he.Message,
		Data:        item.Data,
		SubmittedAt: item.SubmittedAt,
		RejectedAt:  a.now(),
	})
	if err != nil {
		return fmt.Errorf("msgstore: marshal rejection: %w", err)
	}
	return a.store.Put(ctx, Key(item.ID), data)
}

// Load returns the archived rejection of itemID.
func (a *Archive) Load(ctx context.Context, itemID string) (*Rejection, error) {
	if a == nil {
		return nil, ErrNotFound
	}
	data, err := a.store.Get(ctx, Key(itemID))
	if err != nil {
		return nil, err
	}
	var r Rejection
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("msgstore: unmarshal rejection: %w", err)
	}
	return &r, nil
}

// Remove deletes the archived rejection of itemID. Removing a missing
// rejection is not an error.
func (a *Archive) Remove(ctx context.Context, itemID string) error {
	if a == nil {
		return nil
	}
	return a.store.Delete(ctx, Key(itemID))
}
