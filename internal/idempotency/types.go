package idempotency

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record marks one payment session as being, or having been, turned into an
// order. It is keyed by the provider's session id.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"`
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	Note           string    `dynamodbav:"note,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL, epoch seconds
}

func (r *Record) InProgress() bool { return r.Status == StatusInProgress }
func (r *Record) Done() bool       { return r.Status == StatusDone }
func (r *Record) Failed() bool     { return r.Status == StatusFailed }

// DecodeResponse unmarshals the stored response of a DONE record into v.
func (r *Record) DecodeResponse(v any) error {
	if !r.Done() {
		return fmt.Errorf("record %s is %s, not %s", r.IdempotencyKey, r.Status, StatusDone)
	}
	if err := json.Unmarshal([]byte(r.ResponseBody), v); err != nil {
		return fmt.Errorf("decode stored response for %s: %w", r.IdempotencyKey, err)
	}
	return nil
}
