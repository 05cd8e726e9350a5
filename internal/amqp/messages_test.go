package amqp

import (
	"testing"
	"time"

	"savingsrate/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRefreshRequest(t *testing.T) {
	msg := NewRefreshRequest("cron")

	assert.NotEmpty(t, msg.RequestID)
	assert.Equal(t, "cron", msg.Reason)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
	assert.NotEqual(t, msg.RequestID, NewRefreshRequest("cron").RequestID)
}

func TestRefreshRequest_JSON(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &RefreshRequest{RequestID: "abc", Reason: "manual", Timestamp: ts}

	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_id":"abc","reason":"manual","timestamp":"2024-01-01T12:00:00Z"}`, string(data))

	parsed, err := RefreshRequestFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", parsed.RequestID)
	assert.True(t, parsed.Timestamp.Equal(ts))
}

func TestRefreshRequestFromJSON(t *testing.T) {
	t.Run("missing id is generated", func(t *testing.T) {
		msg, err := RefreshRequestFromJSON([]byte(`{}`))
		require.NoError(t, err)
		assert.NotEmpty(t, msg.RequestID)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := RefreshRequestFromJSON([]byte(`{"request_id": 12}`))
		assert.Error(t, err)
	})
}

func TestNewSeriesComputed(t *testing.T) {
	res := core.ComparisonResult{Profiles: []core.ProfileSeries{{ProfileID: "self"}}}

	ev := NewSeriesComputed("", res)
	assert.NotEmpty(t, ev.RequestID)
	assert.False(t, ev.ComputedAt.IsZero())

	_, err := SeriesComputedFromJSON([]byte(`[]`))
	assert.Error(t, err)
}
