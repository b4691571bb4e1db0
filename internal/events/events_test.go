package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := OrderEvent{
		Type:          TypeOrderCompleted,
		OrderID:       "order-1",
		UserID:        "user-1",
		CustomerEmail: "a@example.com",
		OccurredAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	body, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecode_RejectsIncompleteEvents(t *testing.T) {
	_, err := Decode([]byte(`{"type":"order.completed"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
