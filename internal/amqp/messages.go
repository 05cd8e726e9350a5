package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"savingsrate/internal/core"

	"github.com/google/uuid"
)

// RefreshRequest asks the worker to recompute every series.
type RefreshRequest struct {
	RequestID string    `json:"request_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRefreshRequest(reason string) *RefreshRequest {
	return &RefreshRequest{
		RequestID: uuid.NewString(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestFromJSON decodes a request; a missing request_id is filled in.
func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode refresh request: %w", err)
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	return &msg, nil
}

// SeriesComputed is published after every successful run.
type SeriesComputed struct {
	RequestID  string                `json:"request_id"`
	ComputedAt time.Time             `json:"computed_at"`
	Result     core.ComparisonResult `json:"result"`
}

func NewSeriesComputed(requestID string, res core.ComparisonResult) *SeriesComputed {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &SeriesComputed{RequestID: requestID, ComputedAt: time.Now().UTC(), Result: res}
}

func (m *SeriesComputed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SeriesComputedFromJSON(data []byte) (*SeriesComputed, error) {
	var msg SeriesComputed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode series computed: %w", err)
	}
	return &msg, nil
}
