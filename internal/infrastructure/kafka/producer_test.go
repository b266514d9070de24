package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	data, err := encode(map[string]string{"type": "BookingCreated"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"BookingCreated"}`, string(data))

	raw := json.RawMessage(`{"a":1}`)
	data, err = encode(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), data)

	data, err = encode([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))

	_, err = encode(make(chan int))
	assert.Error(t, err)
}
